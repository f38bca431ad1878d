package service

import "testing"

func TestParseAppCommand(t *testing.T) {
	tests := []struct {
		input     string
		isCommand bool
		wantErr   bool
		wantType  AppCommandType
		target    string
	}{
		{"/clear", true, false, CommandClear, ""},
		{"/compact", true, false, CommandCompact, ""},
		{"/model claude-sonnet-4-5", true, false, CommandModel, "claude-sonnet-4-5"},
		{"  /clear  ", true, false, CommandClear, ""},
		{"/model", true, true, 0, ""},
		{"/bogus", true, true, 0, ""},
		{"/", true, true, 0, ""},
		{"hello world", false, false, 0, ""},
		{"what does /clear do?", false, false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, isCommand, err := ParseAppCommand(tt.input)
			if isCommand != tt.isCommand {
				t.Fatalf("isCommand = %v, want %v", isCommand, tt.isCommand)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil || !isCommand {
				return
			}
			if cmd.Type != tt.wantType {
				t.Errorf("type = %v, want %v", cmd.Type, tt.wantType)
			}
			if cmd.Target != tt.target {
				t.Errorf("target = %q, want %q", cmd.Target, tt.target)
			}
		})
	}
}
