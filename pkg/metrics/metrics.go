// Prometheus instrumentation for messaging operations
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConversationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancedesk_conversations_started_total",
		Help: "Conversations created (dedup hits excluded).",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancedesk_messages_sent_total",
		Help: "Messages persisted, by message type.",
	}, []string{"type"})

	MessagesEdited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancedesk_messages_edited_total",
		Help: "Messages edited within the edit window.",
	})

	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancedesk_messages_deleted_total",
		Help: "Messages soft-deleted by their sender.",
	})

	ReactionsChanged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lancedesk_reactions_total",
		Help: "Reactions added or removed.",
	}, []string{"op"})

	Searches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lancedesk_message_searches_total",
		Help: "Search requests served.",
	})
)
