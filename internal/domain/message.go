package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrUnknownMessageTag = errors.New("unknown message tag")
	ErrInvalidMessage    = errors.New("invalid message")
)

type MessageType string

const (
	TypeMouseMove     MessageType = "mouse_move"
	TypeClick         MessageType = "click"
	TypeMouseDown     MessageType = "mouse_down"
	TypeMouseUp       MessageType = "mouse_up"
	TypeScroll        MessageType = "scroll"
	TypeGyro          MessageType = "gyro"
	TypeGyroCalibrate MessageType = "gyro_calibrate"
	TypeKey           MessageType = "key"
	TypeText          MessageType = "text"
	TypeMedia         MessageType = "media"
	TypeNavigate      MessageType = "navigate"
	TypeOSCTrigger    MessageType = "osc_trigger"
	TypePing          MessageType = "ping"
	TypePong          MessageType = "pong"

	// typeOSCAlias is what the browser remote sends for trigger buttons.
	typeOSCAlias MessageType = "osc"
)

const DefaultOSCAddressPrefix = "/remote/osc/"

type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

func (b Button) valid() bool {
	return b == ButtonLeft || b == ButtonRight || b == ButtonMiddle
}

type Direction string

const (
	DirectionUp    Direction = "up"
	DirectionDown  Direction = "down"
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

func (d Direction) valid() bool {
	return d == DirectionUp || d == DirectionDown || d == DirectionLeft || d == DirectionRight
}

type MediaAction string

const (
	MediaPlayPause MediaAction = "play_pause"
	MediaNext      MediaAction = "next"
	MediaPrev      MediaAction = "prev"
	MediaVolUp     MediaAction = "vol_up"
	MediaVolDown   MediaAction = "vol_down"
)

func (a MediaAction) valid() bool {
	switch a {
	case MediaPlayPause, MediaNext, MediaPrev, MediaVolUp, MediaVolDown:
		return true
	}
	return false
}

type KeyAction string

const (
	KeyPress KeyAction = "press"
	KeyDown  KeyAction = "down"
	KeyUp    KeyAction = "up"
)

// RelayMessage is the closed set of remote-control messages a phone sends to
// its desktop. The unexported marker keeps the set closed to this package.
type RelayMessage interface {
	Type() MessageType
	relayMessage()
}

type MouseMove struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type Click struct {
	Button Button `json:"button"`
}

type MouseDown struct {
	Button Button `json:"button"`
}

type MouseUp struct {
	Button Button `json:"button"`
}

type Scroll struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type Gyro struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type GyroCalibrate struct{}

type Key struct {
	Key    string    `json:"key"`
	Action KeyAction `json:"action,omitempty"`
}

type Text struct {
	Text string `json:"text"`
}

type Media struct {
	Action MediaAction `json:"action"`
	Value  *float64    `json:"value,omitempty"`
}

type Navigate struct {
	Direction Direction `json:"direction"`
}

type OSCTrigger struct {
	Trigger TriggerID `json:"trigger"`
	Address string    `json:"address,omitempty"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

func (MouseMove) Type() MessageType     { return TypeMouseMove }
func (Click) Type() MessageType         { return TypeClick }
func (MouseDown) Type() MessageType     { return TypeMouseDown }
func (MouseUp) Type() MessageType       { return TypeMouseUp }
func (Scroll) Type() MessageType        { return TypeScroll }
func (Gyro) Type() MessageType          { return TypeGyro }
func (GyroCalibrate) Type() MessageType { return TypeGyroCalibrate }
func (Key) Type() MessageType           { return TypeKey }
func (Text) Type() MessageType          { return TypeText }
func (Media) Type() MessageType         { return TypeMedia }
func (Navigate) Type() MessageType      { return TypeNavigate }
func (OSCTrigger) Type() MessageType    { return TypeOSCTrigger }
func (Ping) Type() MessageType          { return TypePing }
func (Pong) Type() MessageType          { return TypePong }

func (MouseMove) relayMessage()     {}
func (Click) relayMessage()         {}
func (MouseDown) relayMessage()     {}
func (MouseUp) relayMessage()       {}
func (Scroll) relayMessage()        {}
func (Gyro) relayMessage()          {}
func (GyroCalibrate) relayMessage() {}
func (Key) relayMessage()           {}
func (Text) relayMessage()          {}
func (Media) relayMessage()         {}
func (Navigate) relayMessage()      {}
func (OSCTrigger) relayMessage()    {}
func (Ping) relayMessage()          {}
func (Pong) relayMessage()          {}

// TriggerID accepts both `2` and `"2"` on the wire.
type TriggerID string

func (t *TriggerID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TriggerID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = TriggerID(n.String())
	return nil
}

func (t TriggerID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(t), 10, 64); err == nil {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

// ResolvedAddress is the explicit address, or /remote/osc/<trigger>.
func (o OSCTrigger) ResolvedAddress() string {
	if o.Address != "" {
		return o.Address
	}
	return DefaultOSCAddressPrefix + string(o.Trigger)
}

// PeekType reads only the tag of an encoded message.
func PeekType(raw []byte) (MessageType, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if head.Type == typeOSCAlias {
		return TypeOSCTrigger, nil
	}
	return head.Type, nil
}

func DecodeRelayMessage(raw []byte) (RelayMessage, error) {
	tag, err := PeekType(raw)
	if err != nil {
		return nil, err
	}

	var msg RelayMessage
	switch tag {
	case TypeMouseMove:
		msg, err = decodeAs[MouseMove](raw)
	case TypeClick:
		msg, err = decodeAs[Click](raw)
	case TypeMouseDown:
		msg, err = decodeAs[MouseDown](raw)
	case TypeMouseUp:
		msg, err = decodeAs[MouseUp](raw)
	case TypeScroll:
		msg, err = decodeAs[Scroll](raw)
	case TypeGyro:
		msg, err = decodeAs[Gyro](raw)
	case TypeGyroCalibrate:
		msg = GyroCalibrate{}
	case TypeKey:
		msg, err = decodeAs[Key](raw)
	case TypeText:
		msg, err = decodeAs[Text](raw)
	case TypeMedia:
		msg, err = decodeAs[Media](raw)
	case TypeNavigate:
		msg, err = decodeAs[Navigate](raw)
	case TypeOSCTrigger:
		msg, err = decodeAs[OSCTrigger](raw)
	case TypePing:
		msg, err = decodeAs[Ping](raw)
	case TypePong:
		msg, err = decodeAs[Pong](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageTag, tag)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidMessage, tag, err)
	}

	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func decodeAs[T RelayMessage](raw []byte) (RelayMessage, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks the enum-valued fields of msg.
func Validate(msg RelayMessage) error {
	bad := func(field string, v any) error {
		return fmt.Errorf("%w: %s: bad %s %q", ErrInvalidMessage, msg.Type(), field, v)
	}

	switch m := msg.(type) {
	case Click:
		if !m.Button.valid() {
			return bad("button", m.Button)
		}
	case MouseDown:
		if !m.Button.valid() {
			return bad("button", m.Button)
		}
	case MouseUp:
		if !m.Button.valid() {
			return bad("button", m.Button)
		}
	case Key:
		if m.Key == "" {
			return bad("key", m.Key)
		}
		switch m.Action {
		case "", KeyPress, KeyDown, KeyUp:
		default:
			return bad("action", m.Action)
		}
	case Media:
		if !m.Action.valid() {
			return bad("action", m.Action)
		}
	case Navigate:
		if !m.Direction.valid() {
			return bad("direction", m.Direction)
		}
	case OSCTrigger:
		if m.Trigger == "" && m.Address == "" {
			return bad("trigger", m.Trigger)
		}
	}
	return nil
}

// EncodeRelayMessage renders msg with its "type" tag as the first field.
func EncodeRelayMessage(msg RelayMessage) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(msg.Type())
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}
