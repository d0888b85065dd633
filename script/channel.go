package script

import (
	"github.com/Shopify/go-lua"

	"github.com/thesyncim/wrtc"
)

const channelTypeName = "wrtc.datachannel"

type channel struct {
	h        *host
	dc       *wrtc.DataChannel
	handlers map[string]int
}

var channelEvents = map[string]bool{
	"open":    true,
	"message": true,
	"close":   true,
	"error":   true,
}

func (h *host) registerChannelType() {
	lua.NewMetaTable(h.state, channelTypeName)
	h.state.NewTable()
	lua.SetFunctions(h.state, []lua.RegistryFunction{
		{Name: "label", Function: h.channelLabel},
		{Name: "state", Function: h.channelState},
		{Name: "on", Function: h.channelOn},
		{Name: "send", Function: h.channelSend},
		{Name: "close", Function: h.channelClose},
	}, 0)
	h.state.SetField(-2, "__index")
	h.state.Pop(1)
}

// channel returns the wrapper of dc, creating and observing it once.
func (h *host) channel(dc *wrtc.DataChannel) *channel {
	if h.channels == nil {
		h.channels = make(map[*wrtc.DataChannel]*channel)
	}
	if ch, ok := h.channels[dc]; ok {
		return ch
	}
	ch := &channel{h: h, dc: dc, handlers: make(map[string]int)}
	h.channels[dc] = ch

	dc.OnOpen(func() { ch.emit("open", nil) })
	dc.OnClose(func() { ch.emit("close", nil) })
	dc.OnMessage(func(m wrtc.DataChannelMessage) {
		ch.emit("message", func(l *lua.State) int {
			l.PushString(string(m.Data))
			l.PushBoolean(m.Binary)
			return 2
		})
	})
	dc.OnError(func(err error) {
		ch.emit("error", pushString(err.Error()))
	})
	return ch
}

func (c *channel) push(l *lua.State) {
	l.PushUserData(c)
	lua.SetMetaTableNamed(l, channelTypeName)
}

func (c *channel) emit(event string, args func(*lua.State) int) {
	if ref, ok := c.handlers[event]; ok {
		c.h.call(ref, args)
	}
}

func (h *host) checkChannel(l *lua.State) *channel {
	return lua.CheckUserData(l, 1, channelTypeName).(*channel)
}

func (h *host) channelLabel(l *lua.State) int {
	l.PushString(h.checkChannel(l).dc.Label())
	return 1
}

func (h *host) channelState(l *lua.State) int {
	l.PushString(h.checkChannel(l).dc.ReadyState().String())
	return 1
}

func (h *host) channelOn(l *lua.State) int {
	c := h.checkChannel(l)
	event := lua.CheckString(l, 2)
	if !channelEvents[event] {
		lua.ArgumentError(l, 2, "unknown event "+event)
	}
	if old, ok := c.handlers[event]; ok {
		h.unref(old)
		delete(c.handlers, event)
	}
	if ref := h.optionalRef(3); ref != 0 {
		c.handlers[event] = ref
	}
	return 0
}

// channel:send(data, [binary])
func (h *host) channelSend(l *lua.State) int {
	c := h.checkChannel(l)
	data := lua.CheckString(l, 2)
	var err error
	if l.ToBoolean(3) {
		err = c.dc.Send([]byte(data))
	} else {
		err = c.dc.SendText(data)
	}
	if err != nil {
		lua.Errorf(l, "send: %s", err.Error())
	}
	return 0
}

func (h *host) channelClose(l *lua.State) int {
	if err := h.checkChannel(l).dc.Close(); err != nil {
		lua.Errorf(l, "close: %s", err.Error())
	}
	return 0
}
