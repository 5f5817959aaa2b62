package cmd

import (
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus"
	"github.com/stretchr/testify/assert"
)

func TestVersionCommand(t *testing.T) {
	originalVersion := partybus.Version
	originalCommitSHA := partybus.CommitSHA
	originalBuildTime := partybus.BuildTime

	t.Cleanup(
		func() {
			partybus.Version = originalVersion
			partybus.CommitSHA = originalCommitSHA
			partybus.BuildTime = originalBuildTime
		},
	)

	partybus.Version = "1.0.0"
	partybus.CommitSHA = "abc123"
	partybus.BuildTime = "2023-10-01T12:00:00Z"

	orig := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	t.Cleanup(
		func() {
			os.Stdout = orig
		},
	)

	// Capture the output
	versionCmd.Run(nil, nil)

	_ = w.Close()

	out, _ := io.ReadAll(r)
	output := string(out)
	t.Logf("output: %s", string(out))
	expected := fmt.Sprintf(
		"version=%s commit=%s built: %s",
		partybus.Version,
		partybus.CommitSHA,
		partybus.BuildTime,
	)
	assert.Equal(t, expected, output)
}
