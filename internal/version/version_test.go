package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.BuildMethod)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
}

func TestGetVersionString(t *testing.T) {
	s := GetVersionString()
	assert.True(t, strings.HasPrefix(s, "keycheck "))
	assert.Contains(t, s, Version)
}

func TestGetVersionString_InjectedCommit(t *testing.T) {
	old := GitCommit
	GitCommit = "0123456789abcdef"
	defer func() { GitCommit = old }()

	assert.Equal(t, "keycheck "+Version+" (01234567)", GetVersionString())
}

func TestGetDetailedVersionString(t *testing.T) {
	detailed := GetDetailedVersionString()
	for _, field := range []string{"keycheck", "Git commit:", "Build date:", "Build method:", "Go version:", "Platform:"} {
		assert.Contains(t, detailed, field)
	}
}

func TestBuildMethodDetection(t *testing.T) {
	assert.Contains(t, []string{"make", "go-install", "unknown"}, getBuildMethod())

	old := BuildMethod
	BuildMethod = "make"
	defer func() { BuildMethod = old }()
	assert.Equal(t, "make", getBuildMethod())
}

func TestIsRelease(t *testing.T) {
	assert.NotEqual(t, IsRelease(), IsDevelopment())

	old := Version
	Version = "1.0.0-dev"
	defer func() { Version = old }()
	assert.False(t, IsRelease())
}
