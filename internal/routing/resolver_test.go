package routing

import (
	"testing"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

func TestResolvePeerMatch(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "a1", Match: schema.BindingMatch{
			Channel: "tg",
			Peer:    &schema.RoutePeer{Kind: "direct", ID: "u42"},
		}},
	}
	input := schema.RouteInput{
		Channel:   "tg",
		AccountID: "acct",
		Peer:      &schema.RoutePeer{Kind: "direct", ID: "u42"},
	}

	route := Resolve(input, bindings)
	if route.AgentID != "a1" {
		t.Errorf("expected a1, got %q", route.AgentID)
	}
	if route.MatchedBy != "peer" {
		t.Errorf("expected matched_by=peer, got %q", route.MatchedBy)
	}
	if route.SessionKey != "agent:a1:tg:acct" {
		t.Errorf("unexpected session key %q", route.SessionKey)
	}
	if route.MainSessionKey != "agent:a1:main" {
		t.Errorf("unexpected main session key %q", route.MainSessionKey)
	}
}

func TestResolvePeerChannelMismatch(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "a1", Match: schema.BindingMatch{
			Channel: "discord",
			Peer:    &schema.RoutePeer{Kind: "direct", ID: "u42"},
		}},
	}
	input := schema.RouteInput{
		Channel: "tg",
		Peer:    &schema.RoutePeer{Kind: "direct", ID: "u42"},
	}
	if route := Resolve(input, bindings); route.MatchedBy != "default" {
		t.Errorf("peer binding with other channel must not match, got %q", route.MatchedBy)
	}
}

func TestResolveGuildMatch(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "g", Match: schema.BindingMatch{GuildID: "guild-9"}},
	}
	route := Resolve(schema.RouteInput{Channel: "discord", GuildID: "guild-9"}, bindings)
	if route.AgentID != "g" || route.MatchedBy != "guild" {
		t.Errorf("unexpected route %+v", route)
	}
}

func TestResolveTeamMatch(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "t", Match: schema.BindingMatch{TeamID: "T1"}},
	}
	route := Resolve(schema.RouteInput{Channel: "slack", TeamID: "T1"}, bindings)
	if route.AgentID != "t" || route.MatchedBy != "team" {
		t.Errorf("unexpected route %+v", route)
	}
}

func TestResolveAccountMatch(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "acc", Match: schema.BindingMatch{AccountID: "bot2"}},
	}
	route := Resolve(schema.RouteInput{Channel: "tg", AccountID: "bot2"}, bindings)
	if route.AgentID != "acc" || route.MatchedBy != "account" {
		t.Errorf("unexpected route %+v", route)
	}
}

func TestResolveChannelWildcard(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "tg-agent", Match: schema.BindingMatch{Channel: "tg"}},
	}
	route := Resolve(schema.RouteInput{Channel: "tg", AccountID: "x"}, bindings)
	if route.AgentID != "tg-agent" || route.MatchedBy != "channel" {
		t.Errorf("unexpected route %+v", route)
	}
}

func TestResolveChannelWildcardSkippedWithPeerFilter(t *testing.T) {
	// A binding with a peer filter is not a channel wildcard.
	bindings := []schema.RouteBinding{
		{AgentID: "narrow", Match: schema.BindingMatch{
			Channel: "tg",
			Peer:    &schema.RoutePeer{Kind: "direct", ID: "someone-else"},
		}},
	}
	route := Resolve(schema.RouteInput{Channel: "tg"}, bindings)
	if route.MatchedBy != "default" {
		t.Errorf("expected default, got %q", route.MatchedBy)
	}
}

func TestResolveDefault(t *testing.T) {
	route := Resolve(schema.RouteInput{Channel: "tg", AccountID: "a"}, nil)
	if route.AgentID != "default" || route.MatchedBy != "default" {
		t.Errorf("unexpected route %+v", route)
	}
	if route.SessionKey != "agent:default:tg:a" {
		t.Errorf("unexpected session key %q", route.SessionKey)
	}
}

func TestResolveFirstBindingWins(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "first", Match: schema.BindingMatch{Channel: "tg"}},
		{AgentID: "second", Match: schema.BindingMatch{Channel: "tg"}},
	}
	if route := Resolve(schema.RouteInput{Channel: "tg"}, bindings); route.AgentID != "first" {
		t.Errorf("expected first binding to win, got %q", route.AgentID)
	}
}

func TestResolveDeterministic(t *testing.T) {
	bindings := []schema.RouteBinding{
		{AgentID: "a1", Match: schema.BindingMatch{GuildID: "g"}},
	}
	input := schema.RouteInput{Channel: "discord", GuildID: "g", AccountID: "acct"}

	first := Resolve(input, bindings)
	for i := 0; i < 10; i++ {
		if got := Resolve(input, bindings); got != first {
			t.Fatalf("resolve not deterministic: %+v vs %+v", got, first)
		}
	}
}
