package main

import (
	"github.com/frahmantamala/subscription-billing/cmd"
	"github.com/frahmantamala/subscription-billing/pkg/logger"
)

func main() {
	logger.Init("development")
	cmd.Execute()
}
