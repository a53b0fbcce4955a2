package protocol

import (
	"errors"
	"testing"

	"cuecast/internal/models"
)

func TestDecodeRegister(t *testing.T) {
	data := []byte(`{"type":"register","deviceId":"vp-1","deviceName":"Headset","deviceType":"player"}`)
	env, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeRegister {
		t.Fatalf("got type %q, want register", env.Type)
	}

	var reg Register
	if err := env.Payload(&reg); err != nil {
		t.Fatal(err)
	}
	if reg.DeviceID != "vp-1" {
		t.Errorf("got deviceId %q, want vp-1", reg.DeviceID)
	}
	if reg.DeviceType != models.RolePlayer {
		t.Errorf("got deviceType %q, want player", reg.DeviceType)
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("valid register rejected: %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"teleport"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestRegisterValidate(t *testing.T) {
	cases := []struct {
		name    string
		msg     Register
		wantErr bool
	}{
		{"ok", Register{DeviceID: "d1", DeviceType: models.RoleController}, false},
		{"missing id", Register{DeviceType: models.RolePlayer}, true},
		{"bad role", Register{DeviceID: "d1", DeviceType: "spectator"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCommandValidate(t *testing.T) {
	cmd := Command{Action: models.ActionPlay, TargetDevices: []string{"all"}}
	if err := cmd.Validate(); err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}

	cmd = Command{Action: "launch", TargetDevices: []string{"all"}}
	if err := cmd.Validate(); err == nil {
		t.Error("expected error for unknown action")
	}

	cmd = Command{Action: models.ActionPlay}
	if err := cmd.Validate(); err == nil {
		t.Error("expected error for empty targets")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ping := NewPing()
	data, err := Encode(ping)
	if err != nil {
		t.Fatal(err)
	}
	env, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if env.Type != TypePing {
		t.Fatalf("got type %q, want ping", env.Type)
	}
}
