package wrtc

import "github.com/sirupsen/logrus"

// Option configures a Context, Loop or PeerConnection.
type Option func(*options)

type options struct {
	log     logrus.FieldLogger
	metrics *Metrics
	loop    *Loop
}

// WithLogger sets the logger. The default is logrus.StandardLogger().
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics records bridge metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLoop runs callbacks on l instead of the Context's loop.
func WithLoop(l *Loop) Option {
	return func(o *options) { o.loop = l }
}

func buildOptions(base options, opts []Option) options {
	o := base
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logrus.StandardLogger()
	}
	return o
}
