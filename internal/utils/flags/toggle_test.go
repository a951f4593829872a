package flags

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestAddToggleFlagParsesValues(t *testing.T) {
	testCases := []struct {
		name            string
		arguments       []string
		expectedValue   bool
		expectedChanged bool
	}{
		{name: "default_false", arguments: []string{}, expectedValue: false, expectedChanged: false},
		{name: "implicit_true", arguments: []string{"--toggle"}, expectedValue: true, expectedChanged: true},
		{name: "explicit_yes", arguments: []string{"--toggle", "yes"}, expectedValue: true, expectedChanged: true},
		{name: "explicit_on", arguments: []string{"--toggle", "on"}, expectedValue: true, expectedChanged: true},
		{name: "explicit_one", arguments: []string{"--toggle", "1"}, expectedValue: true, expectedChanged: true},
		{name: "explicit_true_uppercase", arguments: []string{"--toggle", "TRUE"}, expectedValue: true, expectedChanged: true},
		{name: "explicit_no", arguments: []string{"--toggle", "no"}, expectedValue: false, expectedChanged: true},
		{name: "explicit_off", arguments: []string{"--toggle", "off"}, expectedValue: false, expectedChanged: true},
		{name: "explicit_zero", arguments: []string{"--toggle", "0"}, expectedValue: false, expectedChanged: true},
		{name: "explicit_false_uppercase", arguments: []string{"--toggle", "FALSE"}, expectedValue: false, expectedChanged: true},
		{name: "assignment_form", arguments: []string{"--toggle=no"}, expectedValue: false, expectedChanged: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			command := &cobra.Command{}

			var toggleValue bool
			AddToggleFlag(command.Flags(), &toggleValue, "toggle", "", false, "Toggle flag")

			normalizedArguments := NormalizeToggleArguments(testCase.arguments)
			parseError := command.ParseFlags(normalizedArguments)
			require.NoError(t, parseError)

			require.Equal(t, testCase.expectedValue, toggleValue)

			parsedValue, getError := command.Flags().GetBool("toggle")
			require.NoError(t, getError)
			require.Equal(t, testCase.expectedValue, parsedValue)

			flag := command.Flags().Lookup("toggle")
			require.NotNil(t, flag)
			require.Equal(t, testCase.expectedChanged, flag.Changed)
		})
	}
}

func TestAddToggleFlagRejectsInvalidValues(t *testing.T) {
	command := &cobra.Command{}

	var toggleValue bool
	AddToggleFlag(command.Flags(), &toggleValue, "toggle", "", false, "Toggle flag")

	normalizedArguments := NormalizeToggleArguments([]string{"--toggle", "maybe"})
	parseError := command.ParseFlags(normalizedArguments)
	require.Error(t, parseError)

	require.Equal(t, false, toggleValue)

	flag := command.Flags().Lookup("toggle")
	require.NotNil(t, flag)
	require.False(t, flag.Changed)
}

func TestNormalizeToggleArgumentsHandlesShorthand(t *testing.T) {
	command := &cobra.Command{}

	var toggleValue bool
	AddToggleFlag(command.Flags(), &toggleValue, "toggle", "t", false, "Toggle flag")

	normalizedArguments := NormalizeToggleArguments([]string{"-t", "no"})
	parseError := command.ParseFlags(normalizedArguments)
	require.NoError(t, parseError)

	require.False(t, toggleValue)

	flag := command.Flags().Lookup("toggle")
	require.NotNil(t, flag)
	require.True(t, flag.Changed)
}

func TestNormalizeToggleArgumentsRewritesDetachedValues(t *testing.T) {
	command := &cobra.Command{}

	var toggleValue bool
	AddToggleFlag(command.Flags(), &toggleValue, "toggle", "t", false, "Toggle flag")

	testCases := []struct {
		name              string
		arguments         []string
		expectedArguments []string
	}{
		{name: "empty_input", arguments: nil, expectedArguments: nil},
		{name: "long_detached_value", arguments: []string{"--toggle", "no"}, expectedArguments: []string{"--toggle=no"}},
		{name: "short_detached_value", arguments: []string{"-t", "yes"}, expectedArguments: []string{"-t=yes"}},
		{name: "following_flag_untouched", arguments: []string{"--toggle", "--other"}, expectedArguments: []string{"--toggle", "--other"}},
		{name: "unregistered_flag_untouched", arguments: []string{"--map-file", "no"}, expectedArguments: []string{"--map-file", "no"}},
		{name: "terminator_passthrough", arguments: []string{"--", "--toggle", "no"}, expectedArguments: []string{"--", "--toggle", "no"}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.expectedArguments, NormalizeToggleArguments(testCase.arguments))
		})
	}
}
