package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		expectedEnv Environment
	}{
		{
			name: "successful load with defaults",
			setup: func() {
				viper.Reset()
			},
			expectedEnv: EnvDevelopment,
		},
		{
			name: "production from config",
			setup: func() {
				viper.Reset()
				viper.Set("envtype", "production")
			},
			expectedEnv: EnvProduction,
		},
		{
			name: "mixed case envtype is normalized",
			setup: func() {
				viper.Reset()
				viper.Set("envtype", "Production")
			},
			expectedEnv: EnvProduction,
		},
		{
			name: "env flag overrides config",
			setup: func() {
				viper.Reset()
				viper.Set("envtype", "development")
				viper.Set("env", "production")
			},
			expectedEnv: EnvProduction,
		},
		{
			name: "unknown envtype",
			setup: func() {
				viper.Reset()
				viper.Set("envtype", "staging")
			},
			expectError: true,
		},
		{
			name: "invalid port",
			setup: func() {
				viper.Reset()
				viper.Set("livereload.port", 70000)
			},
			expectError: true,
		},
		{
			name: "invalid viper config",
			setup: func() {
				viper.Reset()
				viper.Set("livereload.port", "not_a_port")
			},
			expectError: true,
		},
		{
			name: "dangerous touch command",
			setup: func() {
				viper.Reset()
				viper.Set("tools.touch", "touch; rm -rf /")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, config)
			assert.Equal(t, tt.expectedEnv, config.EnvType)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./src", config.ProcessRoot)
	assert.Equal(t, "./dist", config.DistRoot)
	assert.Equal(t, "dist/css", config.Dist.CSSPath)
	assert.Equal(t, "dist/js", config.Dist.JSPath)
	assert.Equal(t, []string{"./dist/**/*.php"}, config.Dist.PHP)
	assert.Equal(t, config.Dist.PHP, config.Dist.Changed)
	assert.Equal(t, ".php", config.Templates.Extension)
	assert.True(t, config.Templates.Pretty)
	assert.Equal(t, "lessc", config.Styles.Compiler)
	assert.Equal(t, "touch", config.Tools.Touch)
	assert.Equal(t, "localhost", config.LiveReload.Host)
	assert.Equal(t, DefaultLiveReloadPort, config.LiveReload.Port)
	assert.Equal(t, 200*time.Millisecond, config.LiveReload.Delay)
	assert.NotNil(t, config.Preprocess.Context)
	assert.NotEmpty(t, config.Watch.PP)
	assert.NotEmpty(t, config.Watch.AllPHP)
}

func TestLoadCustomValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("dist_root", "./theme")
	viper.Set("process.less", []string{"./styles/site.less"})
	viper.Set("templates.extension", "html")
	viper.Set("templates.pretty", false)
	viper.Set("livereload.delay", "350ms")
	viper.Set("preprocess.context", map[string]string{"DEBUG": "true"})

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./theme", config.DistRoot)
	assert.Equal(t, "theme/css", config.Dist.CSSPath)
	assert.Equal(t, []string{"./styles/site.less"}, config.Process.Less)
	assert.Equal(t, ".html", config.Templates.Extension)
	assert.False(t, config.Templates.Pretty)
	assert.Equal(t, 350*time.Millisecond, config.LiveReload.Delay)
	assert.Equal(t, "true", config.Preprocess.Context["DEBUG"])
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("THEMESMITH_DIST_ROOT", "./public")
	t.Setenv("THEMESMITH_ENVTYPE", "production")
	t.Setenv("THEMESMITH_LIVERELOAD_PORT", "35730")
	t.Setenv("THEMESMITH_LIVERELOAD_DELAY", "500ms")
	t.Setenv("THEMESMITH_STYLES_COMPILER", "/usr/local/bin/lessc")
	t.Setenv("THEMESMITH_TEMPLATES_PRETTY", "false")

	viper.SetEnvPrefix("THEMESMITH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./public", config.DistRoot)
	assert.Equal(t, "public/css", config.Dist.CSSPath)
	assert.Equal(t, EnvProduction, config.EnvType)
	assert.Equal(t, 35730, config.LiveReload.Port)
	assert.Equal(t, 500*time.Millisecond, config.LiveReload.Delay)
	assert.Equal(t, "/usr/local/bin/lessc", config.Styles.Compiler)
	assert.False(t, config.Templates.Pretty)
}

func TestLoadEnvironmentBeatsConfigFile(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("THEMESMITH_DIST_ROOT", "./public")
	viper.SetEnvPrefix("THEMESMITH")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader("dist_root: ./theme\nprocess_root: ./assets\n")))

	config, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "./public", config.DistRoot)
	assert.Equal(t, "./assets", config.ProcessRoot)
}

func TestEnvironment(t *testing.T) {
	assert.True(t, EnvProduction.IsProduction())
	assert.False(t, EnvDevelopment.IsProduction())
	assert.True(t, EnvDevelopment.Valid())
	assert.False(t, Environment("test").Valid())
	assert.Equal(t, "production", EnvProduction.String())
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"./dist", false},
		{"../shared/dist", false},
		{"", true},
		{"   ", true},
		{"dist;rm", true},
		{"$(whoami)", true},
		{"a|b", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validatePath(tt.path)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, loaded, Default())
}
