package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ N int }
type pong struct{ N int }

func TestTranslate_FirstInputBegins(t *testing.T) {
	got := Translate(true, ping{1}, []Command[pong]{Send[pong]{Output: pong{1}}})

	assert.Equal(t, []Event[ping, pong]{
		Began[ping, pong]{},
		Received[ping, pong]{Input: ping{1}},
		Sent[ping, pong]{Output: pong{1}},
	}, got)
}

func TestTranslate_LaterInputDoesNotBegin(t *testing.T) {
	got := Translate(false, ping{2}, []Command[pong]{
		Send[pong]{Output: pong{2}},
		Complete[pong]{},
	})

	assert.Equal(t, []Event[ping, pong]{
		Received[ping, pong]{Input: ping{2}},
		Sent[ping, pong]{Output: pong{2}},
		Completed[ping, pong]{},
	}, got)
}

func TestTranslate_NoCommandsStillReceives(t *testing.T) {
	got := Translate[ping, pong](false, ping{3}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, Received[ping, pong]{Input: ping{3}}, got[0])
}

func TestTranslate_PreservesSendOrder(t *testing.T) {
	cmds := []Command[pong]{
		Send[pong]{Output: pong{1}},
		Send[pong]{Output: pong{2}},
		Send[pong]{Output: pong{3}},
		Complete[pong]{},
	}

	got := Translate(true, ping{0}, cmds)

	var sent []int
	received, completed, began := 0, 0, 0
	for _, ev := range got {
		switch e := ev.(type) {
		case Began[ping, pong]:
			began++
		case Received[ping, pong]:
			received++
		case Sent[ping, pong]:
			sent = append(sent, e.Output.N)
		case Completed[ping, pong]:
			completed++
		}
	}
	assert.Equal(t, 1, began)
	assert.Equal(t, 1, received)
	assert.Equal(t, []int{1, 2, 3}, sent)
	assert.Equal(t, 1, completed)
	assert.IsType(t, Completed[ping, pong]{}, got[len(got)-1])
}
