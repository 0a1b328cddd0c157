package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"visionpanel/internal/auth"
	"visionpanel/internal/store"
	"visionpanel/internal/stream"
)

// handleRegisterForm renders the registration form.
func (s *Server) handleRegisterForm(c *gin.Context) {
	c.HTML(http.StatusOK, "register.html", gin.H{})
}

// handleRegister creates a new user from the registration form.
func (s *Server) handleRegister(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	confirm := c.PostForm("confirm_password")

	if username == "" || password == "" {
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Username and password are required",
		})
		return
	}
	if password != confirm {
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Passwords do not match",
		})
		return
	}

	existing, err := s.store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		s.logger.Error("Failed to look up user", "error", err)
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Registration failed, try again",
		})
		return
	}
	if existing != nil {
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Username is already taken",
		})
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Error("Failed to hash password", "error", err)
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Registration failed, try again",
		})
		return
	}

	if _, err := s.store.CreateUser(c.Request.Context(), username, hash); err != nil {
		s.logger.Error("Failed to create user", "error", err)
		c.HTML(http.StatusOK, "register.html", gin.H{
			"username": username,
			"error":    "Registration failed, try again",
		})
		return
	}

	c.Redirect(http.StatusFound, "/login")
}

// handleLoginForm renders the login form.
func (s *Server) handleLoginForm(c *gin.Context) {
	c.HTML(http.StatusOK, "login.html", gin.H{})
}

// handleLogin authenticates the user and sets the access_token cookie.
func (s *Server) handleLogin(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")

	user, err := s.auth.Authenticate(c.Request.Context(), username, password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("Authentication failed", "error", err)
		}
		c.HTML(http.StatusOK, "login.html", gin.H{
			"username": username,
			"error":    "Wrong username or password",
		})
		return
	}

	token, _, err := s.auth.GenerateToken(user.Username)
	if err != nil {
		s.logger.Error("Failed to generate token", "error", err)
		c.HTML(http.StatusOK, "login.html", gin.H{
			"username": username,
			"error":    "Login failed, try again",
		})
		return
	}

	c.SetCookie("access_token", token, int(s.auth.TokenTTL().Seconds()), "/", "", false, true)
	c.Redirect(http.StatusFound, "/panel")
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(c *gin.Context) {
	c.SetCookie("access_token", "", -1, "/", "", false, true)
	c.Redirect(http.StatusFound, "/login")
}

// handlePanel renders the main panel with the user's cameras and the model
// choices offered by the inference service.
func (s *Server) handlePanel(c *gin.Context) {
	user := currentUser(c)

	cameras, err := s.store.ListCameras(c.Request.Context(), user.ID)
	if err != nil {
		s.logger.Error("Failed to list cameras", "error", err, "user", user.Username)
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	models := append([]string{store.ModelNone}, s.config.Detection.Models...)

	c.HTML(http.StatusOK, "main.html", gin.H{
		"username": user.Username,
		"cameras":  cameras,
		"models":   models,
	})
}

// handleAddCamera adds a camera for the current user.
func (s *Server) handleAddCamera(c *gin.Context) {
	user := currentUser(c)
	name := c.PostForm("name")
	url := c.PostForm("url")

	if name == "" || url == "" {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "name and url are required"})
		return
	}

	existing, err := s.store.GetCameraByName(c.Request.Context(), user.ID, name)
	if err != nil {
		s.logger.Error("Failed to look up camera", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not add camera"})
		return
	}
	if existing != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "camera already exists"})
		return
	}

	if err := s.prober.Probe(url); err != nil {
		s.logger.Warn("Camera source probe failed", "url", url, "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "source is not reachable"})
		return
	}

	camera, err := s.store.AddCamera(c.Request.Context(), user.ID, name, url)
	if err != nil {
		s.logger.Error("Failed to add camera", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not add camera"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": camera.ID})
}

// handleUpdateCamera updates a camera's name and URL, and swaps the source
// of a live session still bound to it.
func (s *Server) handleUpdateCamera(c *gin.Context) {
	user := currentUser(c)
	cameraID := c.PostForm("id")
	name := c.PostForm("name")
	url := c.PostForm("url")

	owned, err := s.store.CheckUserCamera(c.Request.Context(), user.ID, cameraID)
	if err != nil {
		s.logger.Error("Failed to check camera ownership", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not update camera"})
		return
	}
	if !owned {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "unauthorized camera update"})
		return
	}

	if err := s.store.UpdateCamera(c.Request.Context(), cameraID, name, url); err != nil {
		s.logger.Error("Failed to update camera", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not update camera"})
		return
	}

	if err := s.registry.UpdateResource(user.ID, cameraID, url); err != nil {
		s.logger.Warn("Live session source swap failed", "camera_id", cameraID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": cameraID})
}

// handleDeleteCamera deletes a camera and stops its live session if that
// session is still bound to it.
func (s *Server) handleDeleteCamera(c *gin.Context) {
	user := currentUser(c)
	cameraID := c.PostForm("id")

	owned, err := s.store.CheckUserCamera(c.Request.Context(), user.ID, cameraID)
	if err != nil {
		s.logger.Error("Failed to check camera ownership", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not delete camera"})
		return
	}
	if !owned {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "unauthorized camera delete"})
		return
	}

	if err := s.store.DeleteCamera(c.Request.Context(), cameraID); err != nil {
		s.logger.Error("Failed to delete camera", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not delete camera"})
		return
	}

	if s.registry.BoundResource(user.ID) == cameraID {
		s.registry.StopSession(user.ID)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "id": cameraID})
}

// handleGetCameraSettings returns the stored settings of a camera.
func (s *Server) handleGetCameraSettings(c *gin.Context) {
	user := currentUser(c)
	cameraID := c.PostForm("id")

	owned, err := s.store.CheckUserCamera(c.Request.Context(), user.ID, cameraID)
	if err != nil {
		s.logger.Error("Failed to check camera ownership", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not read settings"})
		return
	}
	if !owned {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "unauthorized settings access"})
		return
	}

	settings, err := s.store.GetCameraSettings(c.Request.Context(), cameraID)
	if err != nil || settings == nil {
		if err != nil {
			s.logger.Error("Failed to get camera settings", "error", err)
		}
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not read settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":              true,
		"url":                  settings.URL,
		"model_name":           settings.ModelName,
		"confidence_threshold": settings.ConfidenceThreshold,
	})
}

// handleSetCameraSettings stores new settings and pushes them into the live
// session, normalizing the form's 0-100 threshold to [0,1] and mapping the
// "None" sentinel to no annotation.
func (s *Server) handleSetCameraSettings(c *gin.Context) {
	user := currentUser(c)
	cameraID := c.PostForm("id")
	model := c.PostForm("model")

	thresholdValue, err := strconv.Atoi(c.PostForm("threshold"))
	if err != nil || thresholdValue < 0 || thresholdValue > 100 {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "threshold must be between 0 and 100"})
		return
	}

	owned, err := s.store.CheckUserCamera(c.Request.Context(), user.ID, cameraID)
	if err != nil {
		s.logger.Error("Failed to check camera ownership", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not save settings"})
		return
	}
	if !owned {
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "unauthorized settings access"})
		return
	}

	if err := s.store.SetCameraSettings(c.Request.Context(), cameraID, model, thresholdValue); err != nil {
		s.logger.Error("Failed to set camera settings", "error", err)
		c.JSON(http.StatusOK, gin.H{"success": false, "error": "could not save settings"})
		return
	}

	algorithm := algorithmFromModel(model)
	threshold := float64(thresholdValue) * 0.01
	s.registry.UpdateProcessingConfig(user.ID, &algorithm, &threshold)

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleStream starts (or restarts) the viewer's stream session for the
// camera and drains it as a multipart MJPEG response.
func (s *Server) handleStream(c *gin.Context) {
	user := currentUser(c)
	cameraID := c.Param("camera_id")

	owned, err := s.store.CheckUserCamera(c.Request.Context(), user.ID, cameraID)
	if err != nil {
		s.logger.Error("Failed to check camera ownership", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if !owned {
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized camera access"})
		return
	}

	settings, err := s.store.GetCameraSettings(c.Request.Context(), cameraID)
	if err != nil || settings == nil {
		if err != nil {
			s.logger.Error("Failed to get camera settings", "error", err)
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "camera settings unavailable"})
		return
	}

	processing := stream.ProcessingConfig{
		Algorithm: algorithmFromModel(settings.ModelName),
		Threshold: float64(settings.ConfidenceThreshold) * 0.01,
	}
	if err := s.registry.StartSession(user.ID, cameraID, settings.URL, processing); err != nil {
		s.logger.Error("Failed to start stream session", "camera_id", cameraID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "camera source unavailable"})
		return
	}

	frames, err := s.registry.Frames(user.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	c.Header("Content-Type", "multipart/x-mixed-replace; boundary="+stream.Boundary)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Pragma", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	c.Stream(func(w io.Writer) bool {
		payload, err := frames.Next(c.Request.Context())
		if err != nil {
			return false
		}
		if _, err := w.Write(payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	})

	// Only tear down the session this request was draining; a newer request
	// for the same viewer may already have replaced it.
	s.registry.StopSessionFor(user.ID, frames)
}

// algorithmFromModel maps the stored model name to a session algorithm; the
// "None" sentinel means no annotation.
func algorithmFromModel(model string) string {
	if model == store.ModelNone || model == "" {
		return ""
	}
	return model
}
