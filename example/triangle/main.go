package main

import (
	"context"
	"errors"
	"flag"
	"image/color"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	"github.com/oomph-ac/turtle"
	"github.com/oomph-ac/turtle/canvas"
	"github.com/oomph-ac/turtle/settings"
	"github.com/sirupsen/logrus"
)

// The following program draws a filled triangle with a single turtle, logging every tenth frame.
func main() {
	configPath := flag.String("config", "turtle.toml", "path of the settings file (.toml or .yaml)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		ForceColors:     false,
		TimestampFormat: "2006-01-02 15:04:05",
		FullTimestamp:   true,
	})
	log.SetLevel(logrus.DebugLevel)

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		if err := settings.SaveDefault(*configPath); err != nil {
			log.Fatalf("failed to write default settings: %v", err)
		}
		log.Infof("wrote default settings to %s", *configPath)
	}
	s, err := settings.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	if os.Getenv("STATSVIEW") != "" || s.Debug.StatsView {
		// set configurations before calling `statsview.New()` method
		viewer.SetConfiguration(viewer.WithTheme(viewer.ThemeWesteros), viewer.WithAddr(s.Debug.StatsViewAddr))

		mgr := statsview.New()
		go mgr.Start()
		defer mgr.Stop()
	}

	app, err := turtle.New(log, s)
	if err != nil {
		log.Fatalf("failed to create application: %v", err)
	}
	defer app.Close()

	if stream := app.Stream(); stream != nil {
		srv := &http.Server{Addr: s.Debug.StreamAddr, Handler: stream}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("stream server stopped: %v", err)
			}
		}()
		defer srv.Close()
		log.Infof("streaming frames on ws://%s", s.Debug.StreamAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	renderCtx, stopRender := context.WithCancel(ctx)
	go func() {
		_ = app.Render(renderCtx, func(f canvas.Frame) {
			if f.Seq%10 == 0 {
				log.Debugf("frame %d: %d dirty regions, %d sprites", f.Seq, len(f.Dirty), len(f.Sprites))
			}
		})
	}()

	if err := app.RunObjective(ctx, turtle.SingleTurtleObjective(triangle)); err != nil {
		log.Errorf("objective failed: %v", err)
	}
	stopRender()

	for _, t := range app.Turtles() {
		log.Infof("turtle %d: %v", t.Handle(), t.Properties().Keys())
	}
}

func triangle(ctx context.Context, t *turtle.Turtle, _ *turtle.Application, _ []any) error {
	if err := t.Pause(ctx, 3); err != nil {
		return err
	}

	if err := t.StartFillShape(); err != nil {
		return err
	}
	sides := []struct {
		c    color.RGBA
		turn float64
	}{
		{color.RGBA{G: 0xff, A: 0xff}, 120},
		{color.RGBA{B: 0xff, A: 0xff}, 120},
		{color.RGBA{R: 0xff, A: 0xff}, 150},
	}
	for _, side := range sides {
		if err := t.SetColor(side.c); err != nil {
			return err
		}
		if err := t.MoveForward(ctx, 300); err != nil {
			return err
		}
		if err := t.TurnLeft(ctx, side.turn); err != nil {
			return err
		}
	}

	if err := t.SetColor(color.RGBA{R: 0xff, G: 0xff, A: 0xff}); err != nil {
		return err
	}
	if _, err := t.EndFillShape(); err != nil {
		return err
	}
	if err := t.SetColor(color.RGBA{A: 0xff}); err != nil {
		return err
	}

	if err := t.PenUp(); err != nil {
		return err
	}
	if err := t.MoveForward(ctx, 150); err != nil {
		return err
	}
	if err := t.SetStatus("I'm awesome!"); err != nil {
		return err
	}
	return t.SetHeading(ctx, 0)
}
