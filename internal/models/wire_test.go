package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeInboundFrame_Pong(t *testing.T) {
	frame, err := DecodeInboundFrame([]byte(`{"type":"pong","ts":1234}`))
	require.NoError(t, err)
	assert.Equal(t, FramePong, frame.Kind)
	require.NotNil(t, frame.Pong)
	assert.Equal(t, int64(1234), frame.Pong.Ts)
}

func TestDecodeInboundFrame_Ack(t *testing.T) {
	frame, err := DecodeInboundFrame([]byte(`{"type":"ack","roomId":"r1","clientMsgId":42,"kind":"delivered","ts":99}`))
	require.NoError(t, err)
	assert.Equal(t, FrameAck, frame.Kind)
	require.NotNil(t, frame.Ack)
	assert.Equal(t, "r1", frame.Ack.RoomID)
	assert.Equal(t, int64(42), frame.Ack.ClientMsgID)
	assert.Equal(t, "delivered", frame.Ack.Kind)
}

func TestDecodeInboundFrame_Container(t *testing.T) {
	frame, err := DecodeInboundFrame([]byte(`{"type":"container","roomId":"r1","from":"peer","messageType":"text","containerBase64":"AAAA","ts":7}`))
	require.NoError(t, err)
	assert.Equal(t, FrameContainer, frame.Kind)
	require.NotNil(t, frame.Container)
	assert.Equal(t, "peer", frame.Container.From)
	assert.Equal(t, "AAAA", frame.Container.ContainerBase64)
}

func TestDecodeInboundFrame_RTC(t *testing.T) {
	frame, err := DecodeInboundFrame([]byte(`{"type":"rtc","roomId":"r1","from":"peer","signalType":"offer","payload":{"sdp":"x"},"ts":7}`))
	require.NoError(t, err)
	assert.Equal(t, FrameRTC, frame.Kind)
	require.NotNil(t, frame.RTC)
	assert.Equal(t, "offer", frame.RTC.SignalType)
	assert.JSONEq(t, `{"sdp":"x"}`, string(frame.RTC.Payload))
}

func TestDecodeInboundFrame_UnknownType(t *testing.T) {
	_, err := DecodeInboundFrame([]byte(`{"type":"gossip"}`))
	assert.Error(t, err)
}

func TestDecodeInboundFrame_MalformedJSON(t *testing.T) {
	_, err := DecodeInboundFrame([]byte(`{"type":`))
	assert.Error(t, err)
}

func TestDecodeInboundFrame_ExactlyOneVariant(t *testing.T) {
	frame, err := DecodeInboundFrame([]byte(`{"type":"ack","clientMsgId":1}`))
	require.NoError(t, err)
	assert.NotNil(t, frame.Ack)
	assert.Nil(t, frame.Pong)
	assert.Nil(t, frame.Container)
	assert.Nil(t, frame.RTC)
}
