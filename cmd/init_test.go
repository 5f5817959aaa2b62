package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestInitCommand(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	os.Setenv("SPB_DATABASE_TYPE", "sqlite")
	os.Setenv("SPB_DATABASE", dbPath)
	t.Cleanup(
		func() {
			os.Unsetenv("SPB_DATABASE_TYPE")
			os.Unsetenv("SPB_DATABASE")
		},
	)

	// Mock user input
	oldStdin := os.Stdin
	t.Cleanup(
		func() {
			os.Stdin = oldStdin
		},
	)

	passwords := []string{"testpassword", "testpassword"}
	passwordIndex := 0

	mockPasswordReader := func() ([]byte, error) {
		if passwordIndex >= len(passwords) {
			return nil, fmt.Errorf("no more passwords")
		}
		password := passwords[passwordIndex]
		passwordIndex++
		return []byte(password), nil
	}

	t.Cleanup(
		func() {
			customPasswordReader = nil
		},
	)

	customPasswordReader = mockPasswordReader

	input := "testadmin\n"
	r, w, _ := os.Pipe()
	os.Stdin = r
	go func() {
		_, _ = w.Write([]byte(input))
		_ = w.Close()
	}()

	currentOut := rootCmd.OutOrStdout()
	currentErr := rootCmd.OutOrStderr()
	t.Cleanup(
		func() {
			rootCmd.SetOut(currentOut)
			rootCmd.SetErr(currentErr)
		},
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)

	rootCmd.SetArgs([]string{"init"})
	err := rootCmd.Execute()
	require.NoError(t, err)

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")

	// Verify the output
	output := out.String()
	t.Logf("output: %s", output)
	assert.Contains(t, output, "Admin credentials are not set. Let's set them up.")
	assert.Contains(t, output, "Enter admin username:")
	assert.Contains(t, output, "Enter admin password:")
	assert.Contains(t, output, "Confirm admin password:")
	assert.Contains(t, output, "Admin credentials set successfully")
	assert.Contains(t, output, "Initialization complete")

	// Verify the database contents
	db, err := gorm.Open(sqlite.Open(dbPath))
	require.NoError(t, err)

	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	var settings partybus.BotSettings
	err = db.First(&settings).Error
	require.NoError(t, err)

	assert.Equal(t, "testadmin", settings.AdminUsername)
	assert.NotEmpty(t, settings.AdminPassword)
	assert.NotEqual(t, "testpassword", settings.AdminPassword) // Password should be hashed

	mg := db.Migrator()

	assert.True(t, mg.HasTable(&partybus.Profile{}))
	assert.True(t, mg.HasTable(&partybus.AvailabilityWindow{}))
	assert.True(t, mg.HasTable(&partybus.Venue{}))
	assert.True(t, mg.HasTable(&partybus.RecurrenceRule{}))
	assert.True(t, mg.HasTable(&partybus.JobPosting{}))
	assert.True(t, mg.HasTable(&partybus.BotSettings{}))

	valid, err := partybus.VerifyPassword(settings.AdminPassword, "testpassword")
	assert.NoError(t, err)
	assert.True(t, valid)
}
