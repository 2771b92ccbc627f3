package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samirrijal/siteintel/internal/pkg/config"
)

func TestBuild_DefaultsWithoutOptionalAdapters(t *testing.T) {
	cfg, err := config.Load("siteintel-test")
	require.NoError(t, err)

	svc, err := Build(cfg, nil, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, svc.Validator)
	require.NotNil(t, svc.Geocoder)
	require.NotNil(t, svc.Matcher)
	require.NotNil(t, svc.Surveys)
	require.NotNil(t, svc.Calibration)
	require.NotNil(t, svc.Selection)
	require.Equal(t, 0, svc.Selection.Len())

	res := svc.Validator.Validate("0660640130017", "harris")
	require.True(t, res.Valid)
}
