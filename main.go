package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	orchestratorx "github.com/kasuwahq/support-agent/agent/agents/orchestrator"
	"github.com/kasuwahq/support-agent/agent/commerce"
	contractx "github.com/kasuwahq/support-agent/agent/contract"
	llmx "github.com/kasuwahq/support-agent/agent/llm"
	queryx "github.com/kasuwahq/support-agent/agent/query"
	statex "github.com/kasuwahq/support-agent/agent/state"
	"github.com/kasuwahq/support-agent/pkg/config"
	_ "github.com/kasuwahq/support-agent/pkg/logger/autoload"
	"github.com/kasuwahq/support-agent/storage"
)

func main() {
	ctx := context.Background()

	dbCfg := config.MustNew[storage.Config]("DB")
	db := storage.NewDB(*dbCfg)
	defer db.Close()

	kvCfg := config.MustNew[statex.UpstashRedisConfig]("KV")
	kv, err := statex.NewUpstashRedisKV(*kvCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init kv store")
	}

	contexts, err := statex.NewConversationStore(kv)
	if err != nil {
		log.Fatal().Err(err).Msg("init conversation store")
	}
	carts, err := statex.NewCartStore(kv)
	if err != nil {
		log.Fatal().Err(err).Msg("init cart store")
	}

	pricingCfg := config.MustNew[commerce.PricingConfig]("PRICING")
	engine, err := commerce.NewEngine(db, carts, *pricingCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init commerce engine")
	}

	llmCfg := config.MustNew[llmx.Config]("ORACLE")
	queryOracle, err := llmx.NewQueryOracle(ctx, *llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init query oracle")
	}
	responseOracle, err := llmx.NewResponseOracle(*llmCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init response oracle")
	}

	resolver := queryx.NewResolver(queryOracle, storage.SchemaDescription)
	executor, err := queryx.NewExecutor(db)
	if err != nil {
		log.Fatal().Err(err).Msg("init query executor")
	}

	agent, err := orchestratorx.New(contexts, resolver, executor, engine, responseOracle)
	if err != nil {
		log.Fatal().Err(err).Msg("init orchestrator")
	}

	runREPL(ctx, agent)
}

// runREPL is a minimal stand-in for a channel adapter: one line in, one
// rendered reply out. "auth <customer-id>" toggles the verified session.
func runREPL(ctx context.Context, agent *orchestratorx.Orchestrator) {
	session := contractx.SessionContext{SessionID: "local-repl"}
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("support-agent ready (auth <id> to authenticate, quit to exit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "quit", line == "exit":
			return
		case strings.HasPrefix(line, "auth "):
			session.CustomerID = strings.TrimSpace(strings.TrimPrefix(line, "auth "))
			session.Authenticated = session.CustomerID != ""
			fmt.Println("session:", session.CustomerID)
			continue
		}

		result, err := agent.HandleUtterance(ctx, line, session)
		if err != nil {
			log.Error().Err(err).Msg("turn failed")
			continue
		}
		fmt.Println(result.Reply)
	}
}
