package ws

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
)

func deliveryRoom(t *testing.T) (*Hub, *Client, *Client, *mocks.MessageRepositoryMock, *Delivery) {
	t.Helper()
	hub := NewHub()
	sender := newTestClient(1, "alice")
	peer := newTestClient(2, "bob")
	hub.Register(sender)
	hub.Register(peer)
	hub.JoinRoom(sender, 1, false)
	hub.JoinRoom(peer, 1, false)
	drainEvents(sender)
	drainEvents(peer)

	messageRepo := new(mocks.MessageRepositoryMock)
	return hub, sender, peer, messageRepo, NewDelivery(hub, messageRepo)
}

func TestSendBroadcastsProvisionalThenSaved(t *testing.T) {
	_, sender, peer, messageRepo, delivery := deliveryRoom(t)

	durable := models.Message{ID: 99, ChatID: 1, SenderID: 1, Content: "hi", MessageType: "text", CreatedAt: time.Now()}
	messageRepo.On("CreateMessage", mock.Anything, mock.Anything).Return(durable, nil).Once()

	require.NoError(t, delivery.Send(sender, SendPayload{ChatID: 1, Content: "hi"}))

	// message:new reaches both the sender and the rest of the room, with
	// the same temp id, before the terminal outcome.
	newEnv := waitForEvent(t, peer, EvMessageNew, time.Second)
	var provisional models.OutgoingMessage
	require.NoError(t, json.Unmarshal(newEnv.Data, &provisional))
	assert.True(t, strings.HasPrefix(provisional.ID, "temp-"))
	assert.True(t, provisional.Provisional)
	assert.Equal(t, "alice", provisional.SenderName)

	senderEnv := waitForEvent(t, sender, EvMessageNew, time.Second)
	var senderCopy models.OutgoingMessage
	require.NoError(t, json.Unmarshal(senderEnv.Data, &senderCopy))
	assert.Equal(t, provisional.ID, senderCopy.ID)

	savedEnv := waitForEvent(t, peer, EvMessageSaved, time.Second)
	var saved SavedPayload
	require.NoError(t, json.Unmarshal(savedEnv.Data, &saved))
	assert.Equal(t, provisional.ID, saved.TempID)
	assert.Equal(t, 99, saved.RealMessage.ID)

	waitForEvent(t, sender, EvMessageSaved, time.Second)
	messageRepo.AssertExpectations(t)
}

func TestSendPersistFailureNotifiesWholeRoom(t *testing.T) {
	_, sender, peer, messageRepo, delivery := deliveryRoom(t)

	messageRepo.On("CreateMessage", mock.Anything, mock.Anything).Return(models.Message{}, assert.AnError).Once()

	require.NoError(t, delivery.Send(sender, SendPayload{ChatID: 1, Content: "hi"}))

	newEnv := waitForEvent(t, peer, EvMessageNew, time.Second)
	var provisional models.OutgoingMessage
	require.NoError(t, json.Unmarshal(newEnv.Data, &provisional))

	for _, c := range []*Client{peer, sender} {
		failEnv := waitForEvent(t, c, EvMessageSaveFailed, time.Second)
		var failed SaveFailedPayload
		require.NoError(t, json.Unmarshal(failEnv.Data, &failed))
		assert.Equal(t, provisional.ID, failed.TempID)
		assert.NotEmpty(t, failed.Error)
	}
	messageRepo.AssertExpectations(t)
}

func TestSendForbiddenForNonMembers(t *testing.T) {
	hub, _, peer, messageRepo, delivery := deliveryRoom(t)
	outsider := newTestClient(3, "mallory")
	hub.Register(outsider)

	err := delivery.Send(outsider, SendPayload{ChatID: 1, Content: "hi"})
	var ee *EventError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeForbidden, ee.Code)

	assert.Zero(t, countEvents(drainEvents(peer), EvMessageNew))
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendRejectsBlankContent(t *testing.T) {
	_, sender, peer, messageRepo, delivery := deliveryRoom(t)

	err := delivery.Send(sender, SendPayload{ChatID: 1, Content: "   \n\t"})
	var ee *EventError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidData, ee.Code)

	assert.Zero(t, countEvents(drainEvents(peer), EvMessageNew))
	messageRepo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything)
}

func TestSendDefaultsMessageType(t *testing.T) {
	_, sender, peer, messageRepo, delivery := deliveryRoom(t)

	messageRepo.On("CreateMessage", mock.Anything, mock.MatchedBy(func(p repositories.NewMessageParams) bool {
		return p.MessageType == "text" && p.Content == "hello"
	})).Return(models.Message{ID: 1, ChatID: 1, MessageType: "text"}, nil).Once()

	require.NoError(t, delivery.Send(sender, SendPayload{ChatID: 1, Content: "hello"}))

	env := waitForEvent(t, peer, EvMessageNew, time.Second)
	var provisional models.OutgoingMessage
	require.NoError(t, json.Unmarshal(env.Data, &provisional))
	assert.Equal(t, "text", provisional.MessageType)
	waitForEvent(t, peer, EvMessageSaved, time.Second)
}
