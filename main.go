package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"xiaoz/app/client/wechat"
	"xiaoz/app/config"
	"xiaoz/app/service/agent"
	"xiaoz/app/service/conversation"
	"xiaoz/app/service/engine"
	"xiaoz/app/service/memo"
	"xiaoz/app/service/queue"
	"xiaoz/app/service/reminder"
	"xiaoz/app/util/mylog"

	"github.com/gofiber/fiber/v2/log"
	"github.com/samber/do"
)

func main() {
	di := do.New()
	defer di.Shutdown()
	defer log.Info("Waiting for services to finish...")

	mylog.Preinit()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = mylog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	do.Provide(di, wechat.NewClient)
	do.Provide(di, reminder.New)
	do.Provide(di, agent.New)
	do.Provide(di, conversation.New)
	do.Provide(di, memo.New)
	do.Provide(di, queue.New)
	do.Provide(di, engine.New)

	slog.Info("Chatbot started")

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	go do.MustInvoke[*reminder.Service](di).RunPollLoop(appCtx)

	go do.MustInvoke[*engine.Service](di).Run(appCtx)

	<-appCtx.Done()
}
