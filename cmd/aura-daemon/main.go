package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	log "log/slog"

	cli "github.com/spf13/pflag"

	"aura/internal/assistant"
	"aura/internal/audio"
	"aura/internal/automation"
	"aura/internal/config"
	"aura/internal/fetch"
	"aura/internal/ipc"
	"aura/internal/llm"
	"aura/internal/notify"
	"aura/internal/ocr"
	"aura/internal/proxy"
	"aura/internal/sampler"
	"aura/internal/screen"
	"aura/internal/tts"
	"aura/internal/voice"
	"aura/internal/web"
	"aura/internal/window"
	"aura/pkg/stt"
)

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

func main() {
	configFile := cli.StringP("config", "c", "", "Config file path")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level: logLevelMap[*logLevel],
	})))

	log.Info("Booting up")

	if err := config.LoadSecrets(*envFile); err != nil {
		log.Error("Failed to load env file", "err", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Error("Failed to load config", "err", err)
		os.Exit(1)
	}

	// The flag wins over the config file when given explicitly.
	if !cli.CommandLine.Changed("log") {
		if lvl, ok := logLevelMap[cfg.Logging.Level]; ok {
			log.SetDefault(log.New(tint.NewHandler(os.Stdout, &tint.Options{
				Level: lvl,
			})))
		}
	}

	httpClient := &http.Client{Timeout: 120 * time.Second}
	if cfg.Proxy.Socks != "" {
		httpClient, err = proxy.NewSocksClient(cfg.Proxy.Socks)
		if err != nil {
			log.Error("Failed to dial socks proxy", "proxy", cfg.Proxy.Socks, "err", err)
			os.Exit(1)
		}
		log.Debug("Loaded proxy")
	}

	dispatcher, err := buildDispatcher(cfg, httpClient)
	if err != nil {
		log.Error("Failed to build model backends", "err", err)
		os.Exit(1)
	}

	log.Debug("Loaded model backends", "backends", dispatcher.Backends())

	extractor, err := ocr.NewTesseract(cfg.Sampler.OCRLanguage)
	if err != nil {
		log.Error("Failed to init tesseract", "err", err)
		os.Exit(1)
	}
	defer extractor.Close()

	inspector := window.Detect()
	defer inspector.Close()

	smp := sampler.New(screen.NewDisplayGrabber(), extractor, inspector, sampler.Config{
		Interval:        cfg.Sampler.Interval,
		ChangeThreshold: cfg.Sampler.ChangeThreshold,
		DownscaleFactor: cfg.Sampler.DownscaleFactor,
		ThresholdBlock:  cfg.Sampler.ThresholdBlock,
		ThresholdBias:   cfg.Sampler.ThresholdBias,
	})
	smp.Start()
	defer smp.Stop()

	log.Debug("Loaded screen sampler")

	mic := audio.NewMicrophone()
	if err := mic.Init(); err != nil {
		log.Error("Failed to init audio", "err", err)
		os.Exit(1)
	}
	defer mic.Close()

	whisper, err := stt.NewWhisper(cfg.Voice.ModelPath, cfg.Voice.Language)
	if err != nil {
		log.Error("Failed to init whisper", "err", err)
		os.Exit(1)
	}
	defer whisper.Close()

	log.Debug("Loaded whisper")

	listener := voice.NewListener(mic, whisper, voice.Config{
		Continuous: cfg.Voice.Continuous,
		WakePhrase: cfg.Voice.WakePhrase,
		SampleRate: cfg.Voice.SampleRate,
		ChunkSize:  cfg.Voice.ChunkSize,
		Window:     cfg.Voice.Window,
		MaxSilence: cfg.Voice.MaxSilence,
		Backoff:    cfg.Voice.Backoff,
	})

	ducker := audio.NewDucker(cfg.Ducking.Factor, cfg.Ducking.Floor)
	listener.OnWake(func() {
		if cfg.Voice.Chime {
			if err := notify.Chime(); err != nil {
				log.Warn("Chime failed", "err", err)
			}
		}
		if cfg.Ducking.Enabled {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := ducker.Duck(ctx); err != nil {
				log.Warn("Ducking failed", "err", err)
				return
			}
			// Restore once the listening session is guaranteed over.
			time.AfterFunc(cfg.Voice.Window+cfg.Voice.MaxSilence, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := ducker.Restore(ctx); err != nil {
					log.Warn("Restoring volumes failed", "err", err)
				}
			})
		}
	})

	listener.Start()
	defer listener.Stop()

	fetcher := fetch.New(httpClient, cfg.Fetch.SearchURL)
	asst := assistant.New(smp, dispatcher, automation.NewLinux(), fetcher, cfg.LLM.QueryTimeout)
	if cfg.TTS.Enabled {
		asst.SetSpeaker(tts.NewEspeak(cfg.TTS.Language))
	}

	ctl, err := ipc.StartServer(cfg.Control.SocketPath, controlHandler(smp, listener, asst))
	if err != nil {
		log.Error("Failed to start control socket", "err", err)
		os.Exit(1)
	}
	defer ctl.Close()

	var server *web.Server
	if cfg.Web.Enabled {
		server = web.NewServer(cfg.Web.Addr, asst, smp, listener, whisper)
		go func() {
			if err := server.ListenAndServe(); err != nil {
				log.Error("HTTP server failed", "err", err)
			}
		}()
	}

	// The queue has exactly one consumer: HTTP clients poll it through
	// /voice_commands when the API is up; otherwise the daemon drains
	// it into the assistant itself.
	stopDrain := make(chan struct{})
	if !cfg.Web.Enabled {
		go drainCommands(listener, asst, stopDrain)
	}

	log.Info("Boot up - successful")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down")
	close(stopDrain)

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Warn("HTTP shutdown failed", "err", err)
		}
	}
}

func buildDispatcher(cfg *config.Config, httpClient *http.Client) (*llm.Dispatcher, error) {
	var backends []llm.Backend
	for _, name := range cfg.LLM.Backends {
		switch name {
		case "openai":
			if cfg.LLM.OpenAIKey == "" {
				log.Warn("OPENAI_API_KEY not set, skipping openai backend")
				continue
			}
			backends = append(backends, llm.NewOpenAI(cfg.LLM.OpenAIKey, cfg.LLM.OpenAIModel, httpClient))
		case "gemini":
			if cfg.LLM.GeminiKey == "" {
				log.Warn("GEMINI_API_KEY not set, skipping gemini backend")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			g, err := llm.NewGemini(ctx, cfg.LLM.GeminiKey, cfg.LLM.GeminiModel)
			cancel()
			if err != nil {
				return nil, err
			}
			backends = append(backends, g)
		}
	}
	return llm.NewDispatcher(backends...), nil
}

// drainCommands feeds queued wake-phrase commands to the assistant.
func drainCommands(listener *voice.Listener, asst *assistant.Assistant, stop <-chan struct{}) {
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tick.C:
			for {
				cmd, ok := listener.Next()
				if !ok {
					break
				}

				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				result, err := asst.Process(ctx, cmd)
				cancel()
				if err != nil {
					log.Error("Voice command failed", "command", cmd, "err", err)
					continue
				}
				log.Info("Voice command handled", "command", cmd, "result", result)
			}
		}
	}
}

func controlHandler(smp *sampler.Sampler, listener *voice.Listener, asst *assistant.Assistant) ipc.Handler {
	return func(req ipc.Request) ipc.Reply {
		switch req.Cmd {
		case "status":
			if listener.Paused() {
				return ipc.Reply{OK: true, Result: "paused"}
			}
			return ipc.Reply{OK: true, Result: "running"}

		case "pause":
			listener.Pause()
			return ipc.Reply{OK: true, Result: "paused"}

		case "resume":
			listener.Resume()
			return ipc.Reply{OK: true, Result: "listening"}

		case "capture":
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()

			text, err := listener.CaptureOnce(ctx, 5*time.Second, 5*time.Second)
			if err != nil {
				return ipc.Reply{Error: err.Error()}
			}
			result, err := asst.Process(ctx, text)
			if err != nil {
				return ipc.Reply{Error: err.Error()}
			}
			return ipc.Reply{OK: true, Result: result}

		case "ask":
			if req.Args == "" {
				return ipc.Reply{Error: "ask needs a command in args"}
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			result, err := asst.Process(ctx, req.Args)
			if err != nil {
				return ipc.Reply{Error: err.Error()}
			}
			return ipc.Reply{OK: true, Result: result}

		case "context":
			snap := smp.Context()
			return ipc.Reply{OK: true, Result: snap.ActiveApp + ": " + snap.ScreenText}

		default:
			log.Warn("Unknown control command", "cmd", req.Cmd)
			return ipc.Reply{Error: "unknown command: " + req.Cmd}
		}
	}
}
