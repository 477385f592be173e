package main

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shtetl-dev/shtetl-browse/pkg/common"
	"github.com/shtetl-dev/shtetl-browse/pkg/types"
)

var listenAddress = ":8080"

func init() {
	if port := os.Getenv("PORT"); port != "" {
		listenAddress = ":" + port
	}
}

func main() {
	api := &mockAPI{data: seedListings()}

	mux := http.NewServeMux()
	for _, domain := range []types.Domain{
		types.DomainRestaurants,
		types.DomainSynagogues,
		types.DomainMikvah,
		types.DomainMarketplace,
	} {
		mux.HandleFunc(domain.Path(), api.handleDomain(domain))
	}
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              listenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	common.RunServerWithShutdown(server, "mock listings api", 15*time.Second)
}
