package vpcd

import (
	"bytes"
	"errors"
	"io"
	"testing"

	ncerr "cardrelay/internal/errors"
)

func TestWriteFrame_Encoding(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, []byte{0x00, 0xA4, 0x04, 0x00}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	want := []byte{0x00, 0x04, 0x00, 0xA4, 0x04, 0x00}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got % X, want % X", buf.Bytes(), want)
	}
}

func TestReadFrame_Sequence(t *testing.T) {
	stream := []byte{
		0x00, 0x01, 0x01, // power on
		0x00, 0x01, 0x04, // get ATR
		0x00, 0x05, 0x00, 0xB0, 0x00, 0x00, 0x10, // READ BINARY
		0x00, 0x00, // empty frame
	}
	r := bytes.NewReader(stream)

	wants := [][]byte{{0x01}, {0x04}, {0x00, 0xB0, 0x00, 0x00, 0x10}, {}}
	for i, want := range wants {
		got, err := ReadFrame(r)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got % X, want % X", i, got, want)
		}
	}

	if _, err := ReadFrame(r); err != io.EOF {
		t.Errorf("after last frame: err = %v, want io.EOF", err)
	}
}

func TestReadFrame_Truncated(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"half header", []byte{0x00}, io.ErrUnexpectedEOF},
		{"short body", []byte{0x00, 0x04, 0x00, 0xA4}, io.ErrUnexpectedEOF},
		{"header only", []byte{0x00, 0x02}, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteFrame_TooLarge(t *testing.T) {
	err := WriteFrame(io.Discard, make([]byte, MaxFrameSize+1))
	var pe *ncerr.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ProtocolError", err)
	}
}

func TestWriteFrame_MaxSize(t *testing.T) {
	var buf bytes.Buffer
	frame := bytes.Repeat([]byte{0x5A}, MaxFrameSize)
	if err := WriteFrame(&buf, frame); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if len(got) != MaxFrameSize {
		t.Errorf("len = %d, want %d", len(got), MaxFrameSize)
	}
}

func TestIsControl(t *testing.T) {
	tests := []struct {
		frame []byte
		want  Control
		ok    bool
	}{
		{[]byte{0x00}, PowerOff, true},
		{[]byte{0x01}, PowerOn, true},
		{[]byte{0x02}, Reset, true},
		{[]byte{0x04}, GetATR, true},
		{[]byte{0x90, 0x00}, 0, false},
		{[]byte{}, 0, false},
	}
	for _, tt := range tests {
		c, ok := IsControl(tt.frame)
		if ok != tt.ok || c != tt.want {
			t.Errorf("IsControl(% X) = (%v, %v), want (%v, %v)", tt.frame, c, ok, tt.want, tt.ok)
		}
	}
}

func TestControl_String(t *testing.T) {
	if got := GetATR.String(); got != "get-atr" {
		t.Errorf("GetATR = %q", got)
	}
	if got := Control(0x7F).String(); got != "control(0x7f)" {
		t.Errorf("unknown = %q", got)
	}
}
