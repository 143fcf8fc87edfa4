package paneltest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"prism-bot/internal/gates/xui"
)

type fakePanel struct {
	loginErr error
	listErr  error
	inbounds []xui.Inbound
}

func (f *fakePanel) Login(ctx context.Context) error { return f.loginErr }

func (f *fakePanel) ListInbounds(ctx context.Context) ([]xui.Inbound, error) {
	return f.inbounds, f.listErr
}

func TestStartupTestSuccess(t *testing.T) {
	panel := &fakePanel{inbounds: []xui.Inbound{{ID: 1, Enable: true}}}

	var messages []string
	it := New(panel, 1, func(msg string) { messages = append(messages, msg) })
	it.RunStartupTest(context.Background())

	assert.Len(t, messages, 1)
	assert.True(t, strings.HasPrefix(messages[0], "✅"))
}

func TestStartupTestLoginFailure(t *testing.T) {
	panel := &fakePanel{loginErr: errors.New("статус 401")}

	var messages []string
	it := New(panel, 1, func(msg string) { messages = append(messages, msg) })
	it.RunStartupTest(context.Background())

	assert.Len(t, messages, 1)
	assert.Contains(t, messages[0], "недоступна")
}

func TestStartupTestMissingInbound(t *testing.T) {
	panel := &fakePanel{inbounds: []xui.Inbound{{ID: 7, Enable: true}}}

	var messages []string
	it := New(panel, 1, func(msg string) { messages = append(messages, msg) })
	it.RunStartupTest(context.Background())

	assert.Len(t, messages, 1)
	assert.Contains(t, messages[0], "инбаунд")
}

func TestStartupTestDisabledInbound(t *testing.T) {
	panel := &fakePanel{inbounds: []xui.Inbound{{ID: 1, Enable: false}}}

	var messages []string
	it := New(panel, 1, func(msg string) { messages = append(messages, msg) })
	it.RunStartupTest(context.Background())

	assert.Len(t, messages, 1)
	assert.Contains(t, messages[0], "выключен")
}

func TestNotifyWithoutCallback(t *testing.T) {
	panel := &fakePanel{loginErr: errors.New("boom")}

	it := New(panel, 1, nil)
	// не должно паниковать без notifyFn
	it.RunStartupTest(context.Background())
}
