package server

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsdpag/metcore/controller"
	"github.com/jsdpag/metcore/signal"
)

func TestParseChildOptions(t *testing.T) {
	function, args, roles, err := ParseChildOptions("fixate -rstim -weye -foo bar")
	require.NoError(t, err)
	require.Equal(t, "fixate", function)
	require.Equal(t, []string{"-foo", "bar"}, args)
	require.Equal(t, controller.RoleRead, roles[SlotStim])
	require.Equal(t, controller.RoleWrite, roles[SlotEye])
	_, hasNsp := roles[SlotNsp]
	require.False(t, hasNsp)
}

func TestParseChildOptions_ReadWriteSameSlot(t *testing.T) {
	_, _, roles, err := ParseChildOptions("tracker -rnsp -wnsp")
	require.NoError(t, err)
	require.Equal(t, controller.RoleReadWrite, roles[SlotNsp])
}

func TestParseChildOptions_EmptyString(t *testing.T) {
	_, _, _, err := ParseChildOptions("")
	require.Error(t, err)
}

func TestParseChildOptions_LeadingOption(t *testing.T) {
	_, _, _, err := ParseChildOptions("-rstim fixate")
	require.Error(t, err)
}

func TestParseChildOptions_RepeatedToken(t *testing.T) {
	_, _, _, err := ParseChildOptions("fixate -rstim -rstim")
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		ReaderCounts: [3]int{1, 0, 1},
		Children: []ChildConfig{
			{ID: 1, Function: "stimwriter", Roles: map[SlotName]controller.Role{SlotStim: controller.RoleWrite, SlotNsp: controller.RoleWrite}},
			{ID: 2, Function: "stimreader", Roles: map[SlotName]controller.Role{SlotStim: controller.RoleRead}},
			{ID: 3, Function: "nspreader", Roles: map[SlotName]controller.Role{SlotNsp: controller.RoleRead}},
		},
		RuntimeExec: "metctrl",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestConfigValidate_NoChildren(t *testing.T) {
	cfg := validConfig()
	cfg.Children = nil
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_TooManyChildren(t *testing.T) {
	cfg := validConfig()
	for i := len(cfg.Children); i <= signal.MaxControllers; i++ {
		cfg.Children = append(cfg.Children, ChildConfig{ID: uint8(i + 1), Function: "noop"})
	}
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_MissingRuntimeExec(t *testing.T) {
	cfg := validConfig()
	cfg.RuntimeExec = ""
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_ReaderCountMismatch(t *testing.T) {
	cfg := validConfig()
	cfg.ReaderCounts[0] = 2
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_WriterWithoutReaders(t *testing.T) {
	cfg := &Config{
		ReaderCounts: [3]int{0, 0, 0},
		Children: []ChildConfig{
			{ID: 1, Function: "orphanwriter", Roles: map[SlotName]controller.Role{SlotEye: controller.RoleWrite}},
		},
		RuntimeExec: "metctrl",
	}
	require.Error(t, cfg.Validate())
}

func TestConfigValidate_TwoWritersSameSlot(t *testing.T) {
	cfg := &Config{
		ReaderCounts: [3]int{0, 1, 0},
		Children: []ChildConfig{
			{ID: 1, Function: "a", Roles: map[SlotName]controller.Role{SlotEye: controller.RoleWrite}},
			{ID: 2, Function: "b", Roles: map[SlotName]controller.Role{SlotEye: controller.RoleWrite}},
			{ID: 3, Function: "c", Roles: map[SlotName]controller.Role{SlotEye: controller.RoleRead}},
		},
		RuntimeExec: "metctrl",
	}
	require.Error(t, cfg.Validate())
}

func TestConfigCapacity_Default(t *testing.T) {
	cfg := &Config{}
	require.Equal(t, int(DefaultSlotCapacity.Bytes()), cfg.Capacity())
}
