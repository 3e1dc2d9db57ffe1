package kdriver

import (
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"

	"github.com/kafcore/kafcore/kafka"
)

// groupHandler implements sarama.ConsumerGroupHandler, bridging
// sarama's callback-driven consumer group API onto the poll-based
// kafka.Driver contract the core expects. Setup/Cleanup translate
// into the three rebalance callbacks; ConsumeClaim forwards every
// fetched record onto a shared channel Poll reads from.
type groupHandler struct {
	messages chan *sarama.ConsumerMessage

	onAssigned func([]kafka.TopicPartition)
	onRevoked  func([]kafka.TopicPartition)
	onLost     func([]kafka.TopicPartition)

	mu           sync.Mutex
	session      sarama.ConsumerGroupSession
	prevClaims   map[string][]int32
	assignmentLost atomic.Bool
}

func newGroupHandler(bufferSize int) *groupHandler {
	return &groupHandler{
		messages:   make(chan *sarama.ConsumerMessage, bufferSize),
		prevClaims: make(map[string][]int32),
	}
}

// Setup is called by sarama at the start of a new session, once
// partitions have been (re)assigned.
func (h *groupHandler) Setup(session sarama.ConsumerGroupSession) error {
	h.mu.Lock()
	h.session = session
	claims := session.Claims()
	h.mu.Unlock()

	h.assignmentLost.Store(false)
	if h.onAssigned != nil {
		h.onAssigned(toTopicPartitions(claims))
	}
	return nil
}

// Cleanup is called once a session's claims are about to be revoked,
// either cooperatively or because the member left the group.
func (h *groupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.mu.Lock()
	claims := session.Claims()
	lost := session.Context().Err() != nil
	h.session = nil
	h.mu.Unlock()

	if lost {
		h.assignmentLost.Store(true)
		if h.onLost != nil {
			h.onLost(toTopicPartitions(claims))
		}
		return nil
	}
	if h.onRevoked != nil {
		h.onRevoked(toTopicPartitions(claims))
	}
	return nil
}

// ConsumeClaim reads from one partition's claim and republishes each
// message on the shared channel Poll drains. Returning (as sarama
// requires on rebalance) happens when the claim's Messages() channel
// closes.
func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			select {
			case h.messages <- msg:
			case <-session.Context().Done():
				return nil
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

func (h *groupHandler) currentSession() sarama.ConsumerGroupSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session
}

func toTopicPartitions(claims map[string][]int32) []kafka.TopicPartition {
	var out []kafka.TopicPartition
	for topic, partitions := range claims {
		for _, p := range partitions {
			out = append(out, kafka.TopicPartition{Topic: topic, Partition: p})
		}
	}
	return out
}
