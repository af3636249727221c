package quiz

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		in   string
		want Command
	}{
		{`{"type":"join","name":"Bob","host":false}`, JoinCommand{Name: "Bob"}},
		{`{"type":"answer","index":1,"answer":{"choices":[0,2]},"as":"bot-1"}`,
			AnswerCommand{Index: 1, Answer: Answer{Choices: []int{0, 2}}, As: "bot-1"}},
		{`{"type":"advance","from":"LOBBY","index":0}`, AdvanceCommand{From: PhaseLobby}},
		{`{"type":"roster","op":"rename","identity":"bob","name":"Robert"}`,
			RosterCommand{Op: RosterRename, Identity: "bob", Name: "Robert"}},
		{`{"type":"ack","seq":7}`, AckCommand{Seq: 7}},
		{`{"type":"end"}`, EndCommand{}},
	}

	for _, tt := range tests {
		got, err := DecodeCommand([]byte(tt.in))
		require.NoError(t, err, tt.in)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("DecodeCommand(%s) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestDecodeCommandRejects(t *testing.T) {
	for _, in := range []string{`not json`, `{"type":"dance"}`, `{"type":"answer","index":"one"}`} {
		_, err := DecodeCommand([]byte(in))
		assert.ErrorIs(t, err, ErrInvalidCommand, in)
	}
}

func TestEncodeEnvelope(t *testing.T) {
	data, err := Encode(ErrorEventFor(ErrNotHost))
	require.NoError(t, err)

	var got struct {
		Type string `json:"type"`
		Data struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "ROOM_ERROR", got.Type)
	assert.Equal(t, "NOT_HOST", got.Data.Code)
}

func TestErrorEventHidesInternals(t *testing.T) {
	ev := ErrorEventFor(ErrStoreUnavailable)
	assert.Equal(t, CodeInternal, ev.Code)
	assert.NotContains(t, ev.Message, "store")

	assert.Equal(t, CodeGameStarted, CodeFor(ErrGameStarted))
}
