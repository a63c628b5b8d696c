package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"linerelay/pkg/store"
)

func TestRouteSelfIDCommandBypassesDirectory(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})

	for _, text := range []string{"myid", "MYID", "  MyId ", "查ID", "查id"} {
		for _, dir := range []*fakeDirectory{
			{subscribers: []store.Subscriber{admin("admin1", "U1")}},
			{subscribers: []store.Subscriber{admin("admin1", "")}},
			{err: errors.New("store down")},
		} {
			decision := engine.Route(context.Background(), textEvent("admin1", text), dir)

			reply, ok := decision.(ReplyOnly)
			if !ok {
				t.Fatalf("text %q: decision = %T, want ReplyOnly", text, decision)
			}
			if !strings.Contains(reply.Text, "admin1") {
				t.Fatalf("text %q: reply %q does not contain sender id", text, reply.Text)
			}
			if dir.calls != 0 {
				t.Fatalf("text %q: directory loaded %d times, want 0", text, dir.calls)
			}
		}
	}
}

func TestRouteSelfIDCommandFromOrdinaryUser(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{admin("admin1", "")}}

	decision := engine.Route(context.Background(), textEvent("U9", "myid"), dir)
	require.Equal(t, ReplyOnly{Text: "Your user ID is:\nU9"}, decision)
}

func TestRouteCustomSelfIDCommands(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{SelfIDCommands: []string{"whoami"}})
	dir := &fakeDirectory{}

	if _, ok := engine.Route(context.Background(), textEvent("U9", "WhoAmI"), dir).(ReplyOnly); !ok {
		t.Fatal("expected custom command to reply with id")
	}
	if _, ok := engine.Route(context.Background(), textEvent("U9", "myid"), dir).(BroadcastToAdmins); !ok {
		t.Fatal("expected default command to be replaced by custom commands")
	}
}

func TestRouteAdminWithoutTargetGetsWarning(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{admin("admin1", ""), admin("admin2", "U1")}}

	decision := engine.Route(context.Background(), textEvent("admin1", "hello"), dir)
	require.Equal(t, ReplyOnly{Text: DefaultMessages().NoTarget}, decision)
}

func TestRouteLockedAdminForwardsToTarget(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{admin("admin1", "U1")}}

	decision := engine.Route(context.Background(), textEvent("admin1", "hello"), dir)

	forward, ok := decision.(ForwardToUser)
	require.True(t, ok, "decision = %T, want ForwardToUser", decision)
	require.Equal(t, "U1", forward.TargetID)
	require.Equal(t, "hello", forward.Text)
	require.Equal(t, DefaultMessages().ForwardFailed, forward.FallbackReply)
}

func TestRouteInactiveSubscriberIsOrdinaryUser(t *testing.T) {
	t.Parallel()

	engine := NewEngine(fakeProfiles{names: map[string]string{"admin9": "Former"}}, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{
		admin("admin1", ""),
		{UserID: "admin9", IsActive: false, ActiveChatTarget: store.StringPtr("U1")},
	}}

	decision := engine.Route(context.Background(), textEvent("admin9", "hello"), dir)

	broadcast, ok := decision.(BroadcastToAdmins)
	require.True(t, ok, "decision = %T, want BroadcastToAdmins", decision)
	require.Equal(t, []string{"admin1"}, broadcast.AdminIDs)
}

func TestRouteOrdinaryUserBroadcastsToAllActiveAdmins(t *testing.T) {
	t.Parallel()

	engine := NewEngine(fakeProfiles{names: map[string]string{"U2": "Alice"}}, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{
		admin("admin1", "U1"),
		admin("admin2", ""),
		{UserID: "admin3", IsActive: false},
	}}

	decision := engine.Route(context.Background(), InboundEvent{
		Channel:    "line",
		Kind:       KindTextMessage,
		SenderID:   "U2",
		ReplyToken: "rt",
		Text:       "hi there",
	}, dir)

	broadcast, ok := decision.(BroadcastToAdmins)
	require.True(t, ok, "decision = %T, want BroadcastToAdmins", decision)
	require.Equal(t, []string{"admin1", "admin2"}, broadcast.AdminIDs)
	require.Equal(t, store.Message{UserID: "U2", UserName: "Alice", Content: "hi there", Channel: "line"}, broadcast.Log)

	card := broadcast.Card
	require.Equal(t, "U2", card.SenderID)
	require.Equal(t, "Alice", card.SenderName)
	require.Equal(t, "📩 From: Alice", card.Title)
	require.Equal(t, "hi there", card.Body)
	require.Equal(t, "I want to reply to Alice", card.ButtonDisplayText)

	action := ParseAction(card.ButtonData)
	require.Equal(t, ActionSetTarget, action.Name)
	require.Equal(t, "U2", action.TargetID)
	require.Equal(t, "Alice", action.TargetName)
}

func TestRouteProfileFailureUsesPlaceholder(t *testing.T) {
	t.Parallel()

	engine := NewEngine(fakeProfiles{err: errors.New("profile api down")}, EngineOptions{})
	dir := &fakeDirectory{subscribers: []store.Subscriber{admin("admin1", "")}}

	decision := engine.Route(context.Background(), textEvent("U2", "hi"), dir)

	broadcast, ok := decision.(BroadcastToAdmins)
	require.True(t, ok, "decision = %T, want BroadcastToAdmins", decision)
	require.Equal(t, []string{"admin1"}, broadcast.AdminIDs)
	require.Equal(t, "Unknown User", broadcast.Card.SenderName)
	require.Equal(t, "U2", broadcast.Log.UserID)
	require.Equal(t, "hi", broadcast.Log.Content)
	require.Equal(t, "Unknown User", broadcast.Log.UserName)
}

func TestRouteBlankProfileNameUsesPlaceholder(t *testing.T) {
	t.Parallel()

	engine := NewEngine(fakeProfiles{names: map[string]string{"U2": "   "}}, EngineOptions{})
	decision := engine.Route(context.Background(), textEvent("U2", "hi"), &fakeDirectory{})

	broadcast := decision.(BroadcastToAdmins)
	require.Equal(t, "Unknown User", broadcast.Card.SenderName)
	require.Empty(t, broadcast.AdminIDs)
}

func TestRouteDirectoryFailureDegradesToNoOp(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})
	dir := &fakeDirectory{err: errors.New("connection refused")}

	decision := engine.Route(context.Background(), textEvent("U2", "hi"), dir)
	require.Equal(t, NoOp{Reason: ReasonDirectoryUnavailable}, decision)
}

func TestRouteSetTargetAction(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})

	decision := engine.Route(context.Background(), actionEvent("admin1", "action=set_target&user_id=U3&user_name=Bob"), &fakeDirectory{})

	lock, ok := decision.(SetLock)
	require.True(t, ok, "decision = %T, want SetLock", decision)
	require.Equal(t, "admin1", lock.AdminID)
	require.Equal(t, "U3", lock.TargetID)
	require.Equal(t, "Bob", lock.TargetName)
	require.Contains(t, lock.Confirmation, "Bob")
	require.Equal(t, DefaultMessages().LockFailed, lock.FailureReply)
}

func TestRouteSetTargetDefaultsName(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{Messages: Messages{DefaultTargetName: "Customer"}})

	decision := engine.Route(context.Background(), actionEvent("admin1", "action=set_target&user_id=U3"), &fakeDirectory{})

	lock := decision.(SetLock)
	require.Equal(t, "Customer", lock.TargetName)
	require.Contains(t, lock.Confirmation, "Customer")
}

func TestRouteActionsThatDoNothing(t *testing.T) {
	t.Parallel()

	engine := NewEngine(nil, EngineOptions{})

	tests := []struct {
		name  string
		event InboundEvent
		want  Decision
	}{
		{
			name:  "unknown action",
			event: actionEvent("admin1", "action=archive&user_id=U3"),
			want:  NoOp{Reason: ReasonUnknownAction},
		},
		{
			name:  "set target without user",
			event: actionEvent("admin1", "action=set_target"),
			want:  NoOp{Reason: ReasonInvalidAction},
		},
		{
			name:  "ignored event",
			event: InboundEvent{Kind: KindIgnored},
			want:  NoOp{Reason: ReasonIgnored},
		},
		{
			name:  "text without sender",
			event: InboundEvent{Kind: KindTextMessage, Text: "hi"},
			want:  NoOp{Reason: ReasonMissingSender},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &fakeDirectory{}
			require.Equal(t, tt.want, engine.Route(context.Background(), tt.event, dir))
			require.Zero(t, dir.calls)
		})
	}
}

func TestMessagesMergeKeepsDefaultsForBlankOverrides(t *testing.T) {
	t.Parallel()

	merged := DefaultMessages().Merge(Messages{NoTarget: "pick someone", LockFailed: "  "})
	require.Equal(t, "pick someone", merged.NoTarget)
	require.Equal(t, DefaultMessages().LockFailed, merged.LockFailed)
	require.Equal(t, "plain text", format("plain text", "ignored"))
}

func TestFormatKeepsLiteralPercentSigns(t *testing.T) {
	t.Parallel()

	require.Equal(t, "100% sure: Ann", format("100% sure: %s", "Ann"))
	require.Equal(t, "no verb here", format("no verb here", "Ann"))
	require.Equal(t, "Ann and %s", format("%s and %s", "Ann"))

	engine := NewEngine(nil, EngineOptions{Messages: Messages{LockConfirmed: "Locked on %s (50% off)"}})
	decision := engine.Route(context.Background(), actionEvent("admin1", "action=set_target&user_id=U3&user_name=Bob"), &fakeDirectory{})
	lock, ok := decision.(SetLock)
	require.True(t, ok)
	require.Equal(t, "Locked on Bob (50% off)", lock.Confirmation)
}
