package unit

import "testing"

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"เงินเขียว", "บาท"},
		{"  เงินสด  ", "บาท"},
		{"USD Bills", "บาท"},
		{"น้ำปลา", "แก้ว"},
		{"รถกระบะ", "คัน"},
		{"ข้าวสาร", DefaultUnit},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Detect(tt.name); got != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestRulesIsACopy(t *testing.T) {
	got := Rules()
	if len(got) == 0 {
		t.Fatal("no rules")
	}
	got[0].Unit = "changed"
	if Rules()[0].Unit == "changed" {
		t.Error("Rules exposes internal slice")
	}
}
