package main

import (
	"embed"
	"log"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

//go:embed all:frontend/public
var assets embed.FS

const windowTitle = "PLL Analyzer"

func appOptions(app *App) *options.App {
	return &options.App{
		Title:     windowTitle,
		Width:     760,
		Height:    640,
		MinWidth:  560,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 46, G: 46, B: 46, A: 255},
		OnStartup:        app.Startup,
		OnBeforeClose:    app.BeforeClose,
		OnShutdown:       app.Shutdown,
		Bind:             []interface{}{app},
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if err := wails.Run(appOptions(NewApp())); err != nil {
		log.Fatal("Error running Wails app: ", err.Error())
	}
}
