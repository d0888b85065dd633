package script_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/wrtc"
	"github.com/thesyncim/wrtc/internal/enginetest"
	"github.com/thesyncim/wrtc/script"
)

func newOptions(t *testing.T) (script.Options, *test.Hook, *enginetest.Engine) {
	t.Helper()
	log, hook := test.NewNullLogger()
	log.SetOutput(io.Discard)
	engine := enginetest.New()
	wctx := wrtc.NewContext(engine, wrtc.WithLogger(log))
	t.Cleanup(func() { _ = wctx.Shutdown() })
	return script.Options{Context: wctx, Log: log}, hook, engine
}

func runString(t *testing.T, src string, opts script.Options) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return script.RunString(ctx, t.Name(), src, opts)
}

func TestEchoScript(t *testing.T) {
	opts, hook, engine := newOptions(t)
	opts.Args = []string{"ping"}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, script.Run(ctx, "testdata/echo.lua", opts))

	var logged []string
	for _, e := range hook.AllEntries() {
		logged = append(logged, e.Message)
	}
	assert.Contains(t, logged, "reply echo: ping")

	require.Len(t, engine.Connections(), 2)
	assert.Eventually(t, func() bool { return opts.Context.Refs() == 1 }, time.Second, 10*time.Millisecond,
		"connections are closed when the script finishes")
}

func TestScriptErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"syntax", "wrtc.peer{", "load"},
		{"raise", `error("boom")`, "boom"},
		{"done-with-message", `wrtc.done("gave up")`, "gave up"},
		{"bad-semantics", `wrtc.peer{ semantics = "sideways" }`, "sideways"},
		{"unknown-event", `wrtc.peer{}:on("sparkle", function() end)`, "unknown event sparkle"},
		{"callback-raises", `
			local p = wrtc.peer{}
			p:create_offer(function(err, offer) error("in callback " .. offer.type) end)`, "in callback offer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, _, _ := newOptions(t)
			err := runString(t, tt.src, opts)
			require.ErrorIs(t, err, script.ErrScriptFailed)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScriptSeesOperationErrors(t *testing.T) {
	opts, _, _ := newOptions(t)
	err := runString(t, `
		local p = wrtc.peer{}
		p:create_answer(function(err, answer)
			if err and answer == nil then wrtc.done() else wrtc.done("answer without offer") end
		end)`, opts)
	assert.NoError(t, err)
}

func TestScriptStateAndTransceivers(t *testing.T) {
	opts, _, _ := newOptions(t)
	err := runString(t, `
		local p = wrtc.peer{ ice_servers = { "stun:stun.example.org", { urls = { "turn:turn.example.org" }, username = "u", credential = "c" } } }
		local s = p:state()
		assert(s.signaling == "new" or s.signaling == "stable", s.signaling)
		assert(s.connection == "new", s.connection)
		local t = p:add_transceiver("audio", { direction = "recvonly" })
		assert(t.kind == "audio" and t.direction == "recvonly" and not t.stopped)
		assert(#p:transceivers() == 1)
		assert(p:local_description() == nil)
		p:on("negotiationneeded", function() wrtc.done() end)`, opts)
	assert.NoError(t, err)
}

func TestScriptCancelled(t *testing.T) {
	opts, _, _ := newOptions(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := script.RunString(ctx, "idle", `wrtc.peer{}`, opts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Eventually(t, func() bool { return opts.Context.Refs() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRunNeedsContext(t *testing.T) {
	err := script.RunString(context.Background(), "x", "", script.Options{Log: logrus.New()})
	assert.ErrorIs(t, err, wrtc.ErrInvalidState)
}
