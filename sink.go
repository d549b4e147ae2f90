package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/driver/udp"
	"github.com/vzex/dog-homa/sink"
)

func runSink(ctx context.Context, cfg *config) error {
	if cfg.Sink.Out != "" {
		if err := os.MkdirAll(cfg.Sink.Out, 0700); err != nil {
			return errors.WithStack(err)
		}
	}
	onMessage := func(m sink.Message) {
		log.Infof("received message %s from %#x, %d bytes", m.Id, uint64(m.Source), len(m.Data))
		if cfg.Sink.Out == "" {
			return
		}
		name := filepath.Join(cfg.Sink.Out, fmt.Sprintf("%d-%d", m.Id.TransportId, m.Id.Sequence))
		if err := os.WriteFile(name, m.Data, 0600); err != nil {
			log.Errorf("write %s: %s", name, err)
		}
	}

	var receiver *sink.Sink
	ready := make(chan struct{})
	link, err := udp.Open(cfg.link, func(src driver.Address, packet []byte) {
		<-ready
		receiver.HandlePacket(src, packet)
	})
	if err != nil {
		return err
	}
	defer link.Close()
	receiver = sink.New(link, onMessage)
	close(ready)

	log.Infof("sink %s listening on %s", cfg.link.LocalMAC, link.LocalAddr())
	<-ctx.Done()
	log.Infof("shutting down after %d messages", receiver.Completed())
	return nil
}
