package nativeengine

import "github.com/sirupsen/logrus"

// Option configures an Engine.
type Option func(*options)

type options struct {
	log     logrus.FieldLogger
	sdkPath string
}

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) { o.log = log }
}

// WithSDKPath adds a directory to search for libwrtc_shim.
func WithSDKPath(dir string) Option {
	return func(o *options) { o.sdkPath = dir }
}

func buildOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
