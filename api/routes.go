package api

import (
	"net/http"
	"net/http/pprof"
	"runtime"
	"strconv"

	"mediatrack/handlers"

	"github.com/gorilla/mux"
)

func itoa(i int) string      { return strconv.Itoa(i) }
func itoa64(i uint64) string { return strconv.FormatUint(i, 10) }

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		// Strip port if present
		for i := len(host) - 1; i >= 0; i-- {
			if host[i] == ':' {
				host = host[:i]
				break
			}
		}
		// Allow localhost, 127.0.0.1, ::1
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Set CORS headers
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		// Handle preflight requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleOptions handles OPTIONS requests for CORS preflight
func handleOptions(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	settingsHandler *handlers.SettingsHandler,
	catalogHandler *handlers.CatalogHandler,
	libraryHandler *handlers.LibraryHandler,
	usersHandler *handlers.UsersHandler,
	tasksHandler *handlers.ScheduledTasksHandler,
	artworkHandler *handlers.ArtworkHandler,
) {
	api := r.PathPrefix("/api").Subrouter()

	// Add CORS middleware to API subrouter
	api.Use(corsMiddleware)

	// Settings
	api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
	api.HandleFunc("/settings", settingsHandler.PutSettings).Methods(http.MethodPut, http.MethodPost)
	api.HandleFunc("/settings", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/settings/cache/clear", settingsHandler.ClearCaches).Methods(http.MethodPost)
	api.HandleFunc("/settings/cache/clear", handleOptions).Methods(http.MethodOptions)

	// Catalog search, trending and detail
	api.HandleFunc("/catalog/search", catalogHandler.Search).Methods(http.MethodGet)
	api.HandleFunc("/catalog/search", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/catalog/trending", catalogHandler.Trending).Methods(http.MethodGet)
	api.HandleFunc("/catalog/trending", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/catalog/{mediaType}/{id}", catalogHandler.Detail).Methods(http.MethodGet)
	api.HandleFunc("/catalog/{mediaType}/{id}", handleOptions).Methods(http.MethodOptions)

	// Per-profile library
	api.HandleFunc("/library/{profileID}", libraryHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/library/{profileID}", libraryHandler.Add).Methods(http.MethodPost)
	api.HandleFunc("/library/{profileID}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/order", libraryHandler.Reorder).Methods(http.MethodPut)
	api.HandleFunc("/library/{profileID}/order", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/export", libraryHandler.Export).Methods(http.MethodGet)
	api.HandleFunc("/library/{profileID}/export", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/import", libraryHandler.Import).Methods(http.MethodPost)
	api.HandleFunc("/library/{profileID}/import", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/items/{itemID}", libraryHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/library/{profileID}/items/{itemID}", libraryHandler.Remove).Methods(http.MethodDelete)
	api.HandleFunc("/library/{profileID}/items/{itemID}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/items/{itemID}/status", libraryHandler.SetStatus).Methods(http.MethodPut)
	api.HandleFunc("/library/{profileID}/items/{itemID}/status", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/library/{profileID}/items/{itemID}/progress", libraryHandler.SetProgress).Methods(http.MethodPut)
	api.HandleFunc("/library/{profileID}/items/{itemID}/progress", handleOptions).Methods(http.MethodOptions)

	// Profiles
	api.HandleFunc("/users", usersHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/users", usersHandler.Create).Methods(http.MethodPost)
	api.HandleFunc("/users", usersHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/users/{userID}", usersHandler.Rename).Methods(http.MethodPatch, http.MethodPut)
	api.HandleFunc("/users/{userID}", usersHandler.Delete).Methods(http.MethodDelete)
	api.HandleFunc("/users/{userID}", usersHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/users/{userID}/color", usersHandler.SetColor).Methods(http.MethodPut)
	api.HandleFunc("/users/{userID}/color", usersHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/users/{userID}/pin", usersHandler.SetPin).Methods(http.MethodPut)
	api.HandleFunc("/users/{userID}/pin", usersHandler.ClearPin).Methods(http.MethodDelete)
	api.HandleFunc("/users/{userID}/pin", usersHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/users/{userID}/pin/generate", usersHandler.GeneratePin).Methods(http.MethodPost)
	api.HandleFunc("/users/{userID}/pin/generate", usersHandler.Options).Methods(http.MethodOptions)
	api.HandleFunc("/users/{userID}/pin/verify", usersHandler.VerifyPin).Methods(http.MethodPost)
	api.HandleFunc("/users/{userID}/pin/verify", usersHandler.Options).Methods(http.MethodOptions)

	// Scheduled tasks
	api.HandleFunc("/tasks", tasksHandler.ListTasks).Methods(http.MethodGet)
	api.HandleFunc("/tasks", tasksHandler.CreateTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tasks/{taskID}", tasksHandler.UpdateTask).Methods(http.MethodPut)
	api.HandleFunc("/tasks/{taskID}", tasksHandler.DeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/tasks/{taskID}", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tasks/{taskID}/run", tasksHandler.RunTaskNow).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}/run", handleOptions).Methods(http.MethodOptions)
	api.HandleFunc("/tasks/{taskID}/toggle", tasksHandler.ToggleTask).Methods(http.MethodPost)
	api.HandleFunc("/tasks/{taskID}/toggle", handleOptions).Methods(http.MethodOptions)

	// Artwork proxy endpoint (no auth required for image loading)
	if artworkHandler != nil {
		api.HandleFunc("/artwork", artworkHandler.Proxy).Methods(http.MethodGet, http.MethodHead)
		api.HandleFunc("/artwork", artworkHandler.Options).Methods(http.MethodOptions)
	}

	// Pprof debug endpoints for profiling (localhost only)
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/allocs", pprof.Handler("allocs").ServeHTTP)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)

	// Runtime stats endpoint (localhost only)
	runtimeRouter := api.PathPrefix("/debug/runtime").Subrouter()
	runtimeRouter.Use(localhostOnlyMiddleware)
	runtimeRouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		artworkCount, artworkBytes := 0, int64(0)
		if artworkHandler != nil {
			artworkCount, artworkBytes = artworkHandler.CacheStats()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{` +
			`"goroutines":` + itoa(runtime.NumGoroutine()) + `,` +
			`"heapAlloc":` + itoa64(m.HeapAlloc) + `,` +
			`"heapSys":` + itoa64(m.HeapSys) + `,` +
			`"heapInuse":` + itoa64(m.HeapInuse) + `,` +
			`"heapObjects":` + itoa64(m.HeapObjects) + `,` +
			`"numGC":` + itoa(int(m.NumGC)) + `,` +
			`"lastGC":` + itoa64(m.LastGC) + `,` +
			`"numCPU":` + itoa(runtime.NumCPU()) + `,` +
			`"artworkCacheEntries":` + itoa(artworkCount) + `,` +
			`"artworkCacheBytes":` + itoa64(uint64(artworkBytes)) +
			`}`))
	}).Methods(http.MethodGet)
}
