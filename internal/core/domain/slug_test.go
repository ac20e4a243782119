package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify_Simple(t *testing.T) {
	assert.Equal(t, "timer-bot", Slugify("Timer Bot"))
}

func TestSlugify_DropsSpecialChars(t *testing.T) {
	assert.Equal(t, "my-app-20", Slugify("My App 2.0!"))
}

func TestSlugify_Underscores(t *testing.T) {
	assert.Equal(t, "weather-bot", Slugify("weather_bot"))
}

func TestSlugify_AlreadyClean(t *testing.T) {
	assert.Equal(t, "chat-service-2", Slugify("chat-service-2"))
}

func TestSlugify_Empty(t *testing.T) {
	assert.Equal(t, "", Slugify(""))
	assert.Equal(t, "", Slugify("!!!"))
}
