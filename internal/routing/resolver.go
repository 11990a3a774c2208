// Package routing resolves which agent handles an inbound message.
package routing

import (
	"fmt"

	"github.com/tinyclaw/tinyclaw/internal/schema"
)

// DefaultAgentID is used when no binding matches.
const DefaultAgentID = "default"

// Resolve evaluates bindings in order and returns the first match.
//
// Priority cascade within each binding:
//  1. Peer (kind + id, with an optional channel filter)
//  2. Guild ID
//  3. Team ID
//  4. Account ID
//  5. Channel wildcard (no peer and no account filter)
//
// When nothing matches, the default agent is selected. Pure and idempotent:
// the result depends only on (input, bindings).
func Resolve(input schema.RouteInput, bindings []schema.RouteBinding) schema.ResolvedRoute {
	for _, binding := range bindings {
		match := binding.Match

		if match.Peer != nil && input.Peer != nil &&
			match.Peer.Kind == input.Peer.Kind &&
			match.Peer.ID == input.Peer.ID &&
			(match.Channel == "" || match.Channel == input.Channel) {
			return buildRoute(binding.AgentID, input, "peer")
		}

		if match.GuildID != "" && match.GuildID == input.GuildID {
			return buildRoute(binding.AgentID, input, "guild")
		}

		if match.TeamID != "" && match.TeamID == input.TeamID {
			return buildRoute(binding.AgentID, input, "team")
		}

		if match.AccountID != "" && match.AccountID == input.AccountID {
			return buildRoute(binding.AgentID, input, "account")
		}

		if match.Channel != "" && match.Channel == input.Channel &&
			match.Peer == nil && match.AccountID == "" {
			return buildRoute(binding.AgentID, input, "channel")
		}
	}

	return buildRoute("", input, "default")
}

func buildRoute(agentID string, input schema.RouteInput, matchedBy string) schema.ResolvedRoute {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	return schema.ResolvedRoute{
		AgentID:        agentID,
		Channel:        input.Channel,
		AccountID:      input.AccountID,
		SessionKey:     fmt.Sprintf("agent:%s:%s:%s", agentID, input.Channel, input.AccountID),
		MainSessionKey: fmt.Sprintf("agent:%s:main", agentID),
		MatchedBy:      matchedBy,
	}
}
