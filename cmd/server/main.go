package main

import (
	_ "github.com/eleven-am/voice-stt/docs"
	"github.com/eleven-am/voice-stt/internal/bootstrap"
)

// @title Voice STT API
// @version 1.0.0
// @description Streaming speech-to-text service. The transcription protocol itself runs over the /ws/stt websocket, see /asyncapi.yaml.
// @BasePath /

func main() {
	bootstrap.Run()
}
