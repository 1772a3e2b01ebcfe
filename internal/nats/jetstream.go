// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 halcyon contributors
// https://github.com/halcyonrmm/halcyon

package nats

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/halcyonrmm/halcyon/internal/pkg/logger"
)

// JetStream wraps the JetStream context used for the durable change-event
// stream.
type JetStream struct {
	client *Client
	js     nats.JetStreamContext
	logger *logger.Logger
}

// StreamConfig holds stream configuration.
type StreamConfig struct {
	Name        string
	Description string
	Subjects    []string
	MaxAge      time.Duration
	MaxBytes    int64
	MaxMsgs     int64
	Replicas    int
}

// NewJetStream creates a JetStream wrapper from a connected client.
func NewJetStream(client *Client, log *logger.Logger) (*JetStream, error) {
	if client == nil || client.Conn() == nil {
		return nil, fmt.Errorf("nats client not connected")
	}
	if !client.config.JetStreamEnabled {
		return nil, fmt.Errorf("jetstream is disabled in configuration")
	}
	if log == nil {
		log = logger.Nop()
	}

	var jsOpts []nats.JSOpt
	if client.config.JetStreamDomain != "" {
		jsOpts = append(jsOpts, nats.Domain(client.config.JetStreamDomain))
	}

	js, err := client.Conn().JetStream(jsOpts...)
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &JetStream{
		client: client,
		js:     js,
		logger: log.Named("jetstream"),
	}, nil
}

// EnsureStream creates the stream or updates it if it already exists.
func (j *JetStream) EnsureStream(cfg StreamConfig) (*nats.StreamInfo, error) {
	streamCfg := &nats.StreamConfig{
		Name:        cfg.Name,
		Description: cfg.Description,
		Subjects:    cfg.Subjects,
		MaxAge:      cfg.MaxAge,
		MaxBytes:    cfg.MaxBytes,
		MaxMsgs:     cfg.MaxMsgs,
		Replicas:    cfg.Replicas,
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		Discard:     nats.DiscardOld,
	}
	if streamCfg.Replicas == 0 {
		streamCfg.Replicas = 1
	}

	info, err := j.js.StreamInfo(cfg.Name)
	if err == nil {
		info, err = j.js.UpdateStream(streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", cfg.Name, err)
		}
		j.logger.Debug("updated stream", "name", cfg.Name)
		return info, nil
	}

	info, err = j.js.AddStream(streamCfg)
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", cfg.Name, err)
	}

	j.logger.Info("created stream", "name", cfg.Name, "subjects", cfg.Subjects)
	return info, nil
}

// StreamInfo returns information about a stream.
func (j *JetStream) StreamInfo(name string) (*nats.StreamInfo, error) {
	return j.js.StreamInfo(name)
}

// Publish publishes a message to JetStream and waits for the ack.
func (j *JetStream) Publish(subject string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error) {
	return j.js.Publish(subject, data, opts...)
}

// QueueSubscribe creates a queue subscription on the stream.
func (j *JetStream) QueueSubscribe(subject, queue string, handler nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return j.js.QueueSubscribe(subject, queue, handler, opts...)
}

// PullSubscribe creates a pull subscription for batch consumers.
func (j *JetStream) PullSubscribe(subject, durable string, opts ...nats.SubOpt) (*nats.Subscription, error) {
	return j.js.PullSubscribe(subject, durable, opts...)
}
