package configuration

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type localConfiguration struct {
	Version Version `yaml:"version"`
	Log     *Log    `yaml:"log"`
}

var expectedConfig = localConfiguration{
	Version: "0.1",
	Log: &Log{
		Formatter: "json",
	},
}

func TestParserSuite(t *testing.T) {
	suite.Run(t, new(ParserSuite))
}

type ParserSuite struct {
	suite.Suite
}

func (s *ParserSuite) TestParserOverwriteInitializedPointer() {
	config := localConfiguration{}

	err := os.Setenv("GARDEN_LOG_FORMATTER", "json")
	require.NoError(s.T(), err)
	defer os.Unsetenv("GARDEN_LOG_FORMATTER")

	p := NewParser("garden", []VersionedParseInfo{
		{
			Version: "0.1",
			ParseAs: reflect.TypeOf(config),
			ConversionFunc: func(c any) (any, error) {
				return c, nil
			},
		},
	})

	err = p.Parse([]byte(`{version: "0.1", log: {formatter: "text"}}`), &config)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedConfig, config)
}

func (s *ParserSuite) TestParseOverwriteUninitializedPointer() {
	config := localConfiguration{}

	err := os.Setenv("GARDEN_LOG_FORMATTER", "json")
	require.NoError(s.T(), err)
	defer os.Unsetenv("GARDEN_LOG_FORMATTER")

	p := NewParser("garden", []VersionedParseInfo{
		{
			Version: "0.1",
			ParseAs: reflect.TypeOf(config),
			ConversionFunc: func(c any) (any, error) {
				return c, nil
			},
		},
	})

	err = p.Parse([]byte(`{version: "0.1"}`), &config)
	require.NoError(s.T(), err)
	require.Equal(s.T(), expectedConfig, config)
}

func (s *ParserSuite) TestOverwriteStructInline() {
	tests := []struct {
		name   string
		config any
	}{
		{
			name: "inline alone",
			config: &struct {
				Database struct {
					DatabaseTLS `yaml:",inline"`
				} `yaml:"database"`
			}{},
		},
		{
			name: "inline before other",
			config: &struct {
				Database struct {
					DatabaseTLS `yaml:",inline,omitempty"`
				} `yaml:"database"`
			}{},
		},
		{
			name: "inline after other",
			config: &struct {
				Database struct {
					DatabaseTLS `yaml:",omitempty,inline"`
				} `yaml:"database"`
			}{},
		},
	}

	err := os.Setenv("GARDEN_DATABASE_SSLMODE", "verify-full")
	require.NoError(s.T(), err)
	defer os.Unsetenv("GARDEN_DATABASE_SSLMODE")

	for _, tt := range tests {
		s.Run(tt.name, func() {
			config := tt.config
			p := NewParser("garden", []VersionedParseInfo{
				{
					Version:        "0.1",
					ParseAs:        reflect.TypeOf(config).Elem(),
					ConversionFunc: func(c any) (any, error) { return c, nil },
				},
			})

			v := reflect.ValueOf(config).Elem()
			err = p.overwriteStruct(v, "GARDEN_DATABASE_SSLMODE", []string{"DATABASE", "SSLMODE"}, "verify-full")
			require.NoError(s.T(), err)

			got := v.FieldByName("Database").FieldByName("DatabaseTLS").FieldByName("SSLMode").String()
			require.Equal(s.T(), "verify-full", got)
		})
	}
}
