package wallet

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const timeout = 15

// Router returns the RESTful API of the service.
func (w *Wallet) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", w.homeHandler)
	r.HandleFunc("/state", w.stateHandler).Methods(http.MethodGet)           // current bootstrap state
	r.HandleFunc("/initialize", w.initializeHandler).Methods(http.MethodPost) // run or join a bootstrap attempt
	r.HandleFunc("/address", w.addressHandler).Methods(http.MethodGet)        // resolved wallet address
	r.HandleFunc("/balance", w.balanceHandler).Methods(http.MethodGet)        // balance of the resolved address
	r.HandleFunc("/networks", w.networksHandler).Methods(http.MethodGet)      // get all available blockchains

	return r
}

// Init sets up and starts the http server to service the RESTful API. It returns when the server fails or, after
// Stop, once the service has been stopped.
func (w *Wallet) Init(endpoint, port string) error {
	s := &http.Server{
		Handler:           w.Router(),
		Addr:              endpoint + ":" + port,
		WriteTimeout:      timeout * time.Second,
		ReadTimeout:       timeout * time.Second,
		ReadHeaderTimeout: timeout * time.Second,
	}

	w.l.Lock()
	w.s = s
	w.l.Unlock()

	w.log.Info("listening to API http requests", zap.String("endpoint", endpoint), zap.String("port", port))

	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// wait for Stop to finish
	<-w.sc

	return nil
}
