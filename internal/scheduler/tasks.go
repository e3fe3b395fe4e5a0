package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskChatQueued = "routing.chat.queued"

// ChatQueuedPayload carries a conversation that just entered a queue and is
// waiting for distribution.
type ChatQueuedPayload struct {
	ConversationID string `json:"conversationId"`
	QueueID        string `json:"queueId"`
}

func NewChatQueuedTask(payload ChatQueuedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskChatQueued, data), nil
}

func ParseChatQueuedPayload(task *asynq.Task) (ChatQueuedPayload, error) {
	var payload ChatQueuedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ChatQueuedPayload{}, err
	}
	return payload, nil
}
