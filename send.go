package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/driver/udp"
	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/sender"
)

func readPayload(path string) ([]byte, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		return data, errors.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	return data, errors.WithStack(err)
}

func runSend(ctx context.Context, cfg *config, j journal.Journal) error {
	payload, err := readPayload(cfg.Send.File)
	if err != nil {
		return err
	}

	ready := make(chan struct{})
	var s *sender.Sender
	link, err := udp.Open(cfg.link, func(src driver.Address, packet []byte) {
		<-ready
		if s == nil {
			return
		}
		if err := s.HandlePacket(src, packet); err != nil {
			log.Debugf("packet from %#x: %s", uint64(src), err)
		}
	})
	if err != nil {
		return err
	}
	defer link.Close()

	s, err = sender.New(link, uint64(time.Now().UnixNano()), cfg.sender)
	if err != nil {
		close(ready)
		return err
	}
	s.SetJournal(j)
	close(ready)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(runCtx)

	msg := s.AllocMessage()
	err = msg.AcquireBuffer(func(b *sender.Buffer) error {
		return b.Append(payload)
	})
	if err != nil {
		return err
	}
	id, err := s.SendMessage(msg, cfg.to.Address())
	if err != nil {
		return err
	}
	log.Infof("sending %d bytes to %s as message %s", len(payload), cfg.to, id)

	waitCtx := ctx
	if cfg.Send.Timeout > 0 {
		var cancelWait context.CancelFunc
		waitCtx, cancelWait = context.WithTimeout(ctx, cfg.Send.Timeout)
		defer cancelWait()
	}
	start := time.Now()
	state, err := msg.Wait(waitCtx)
	snap := msg.Snapshot()
	if state != sender.Completed {
		return errors.Wrapf(err, "message %s ended %s after %d of %d packets",
			id, state, snap.SentIndex, snap.TotalPackets)
	}
	log.Infof("message %s completed in %s, %d packets, %d retries",
		id, time.Since(start), snap.TotalPackets, snap.Retries)
	return s.Release(msg)
}
