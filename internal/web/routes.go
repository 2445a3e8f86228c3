package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	facesHandler := handlers.NewFacesHandler(s.deps.Registry, s.deps.Camera, s.deps.Photos)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Attendance)
	streamHandler := handlers.NewStreamHandler(s.deps.Streamer)

	s.router.Get("/api/health", handlers.HealthCheck)

	s.router.Route("/api", func(r chi.Router) {
		// Long-lived; runs until the client disconnects.
		r.Get("/video_feed/{mode}", streamHandler.VideoFeed)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			// Enrollment
			r.Post("/register", facesHandler.Register)
			r.Post("/edit", facesHandler.Edit)
			r.Post("/delete", facesHandler.Delete)
			r.Get("/registered_users", facesHandler.List)
			r.Get("/photos/{name}", facesHandler.Photo)

			// Attendance
			r.Post("/clear_attendance", attendanceHandler.Clear)
			r.Get("/attendance_log", attendanceHandler.Session)
			r.Get("/attendance_history", attendanceHandler.History)
		})
	})
}
