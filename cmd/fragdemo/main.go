// Command fragdemo wires two engine.Engine instances back to back over a
// pair of in-process byte channels, one per priority class, and sends a
// handful of objects across to demonstrate the whole fragment →
// transport → reassemble → deserialize pipeline end to end.
package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relayshell/fragmux/internal/demoobj"
	"github.com/relayshell/fragmux/pkg/engine"
	"github.com/relayshell/fragmux/pkg/events"
	"github.com/relayshell/fragmux/pkg/logging"
	"github.com/relayshell/fragmux/pkg/priority"
)

// wireChannel is one priority's simulated transport: a bounded channel
// of already-framed wire fragments.
type wireChannel chan []byte

// pump is the single reader the send queue's contract requires: one
// goroutine repeatedly pulls the next due fragment (PromptResponse
// ahead of Default at every fragment boundary) and forwards it onto
// whichever of the two wires matches the priority it was pulled for.
func pump(ctx context.Context, src *engine.Engine, wires map[priority.Class]wireChannel) {
	wake := make(chan struct{}, 1)
	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	for {
		class, frag, ok := src.ReadOrRegister(notify)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				continue
			}
		}
		select {
		case wires[class] <- frag:
		case <-ctx.Done():
			return
		}
	}
}

// deliver forwards ch's fragments into dst under class until ctx is
// canceled.
func deliver(ctx context.Context, ch wireChannel, dst *engine.Engine, class priority.Class) {
	for {
		select {
		case <-ctx.Done():
			return
		case frag := <-ch:
			if err := dst.ProcessRawData(ctx, class, frag); err != nil {
				logging.Error("object rejected", zap.Error(err))
			}
		}
	}
}

func main() {
	logging.Init(&logging.Config{Level: "debug", Format: "console"})
	defer logging.Sync()

	cfg := engine.Config{
		FragmentSize:              512,
		MaximumReceivedObjectSize: 1 << 20,
		MaximumReceivedDataSize:   4 << 20,
	}

	type delivery struct {
		class priority.Class
		obj   any
	}
	received := make(chan delivery, 16)

	server, err := engine.New(cfg, events.NewZapSink(0), demoobj.ProtoSerializer{}.Deserialize,
		func(class priority.Class, objectID uint64, obj any) {
			received <- delivery{class, obj}
		})
	if err != nil {
		logging.Fatal("building server engine", zap.Error(err))
	}

	client, err := engine.New(cfg, events.NewZapSink(0), nil, nil)
	if err != nil {
		logging.Fatal("building client engine", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wires := map[priority.Class]wireChannel{
		priority.PromptResponse: make(wireChannel, 64),
		priority.Default:        make(wireChannel, 64),
	}

	go pump(ctx, client, wires)
	go deliver(ctx, wires[priority.PromptResponse], server, priority.PromptResponse)
	go deliver(ctx, wires[priority.Default], server, priority.Default)

	serializer := demoobj.ProtoSerializer{}
	send := func(class priority.Class, fields map[string]any) {
		payload, err := serializer.Serialize(fields)
		if err != nil {
			logging.Fatal("serializing demo object", zap.Error(err))
		}
		if _, err := client.SendObject(class, payload); err != nil {
			logging.Fatal("sending demo object", zap.Error(err))
		}
	}

	send(priority.PromptResponse, map[string]any{"kind": "prompt", "text": "continue? [y/n]"})
	send(priority.Default, map[string]any{"kind": "output", "lines": float64(4000)})

	for i := 0; i < 2; i++ {
		select {
		case r := <-received:
			fmt.Printf("received on %s: %v\n", r.class, r.obj)
		case <-time.After(2 * time.Second):
			logging.Warn("timed out waiting for demo object")
		}
	}
}
