// Package mocks provides mock implementations for testing the dispatchq task queue.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRepo := mocks.NewMockTaskRepository(ctrl)
//	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(task, nil)
package mocks

// Generate mock for TaskRepository interface from internal/core package.
// This creates MockTaskRepository with methods for all TaskRepository interface methods:
// Create, GetByID, List, Update, Delete, ClaimNext, WaitForNotification, Pause, Resume,
// Complete, Fail, Stats
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=task_repository_mock.go github.com/dispatchq/dispatchq/internal/core TaskRepository

// Generate mock for WorkerRepository interface from internal/core package.
// This creates MockWorkerRepository with methods for all WorkerRepository interface methods:
// Register, GetByID, List, Heartbeat, UpdateStatus
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=worker_repository_mock.go github.com/dispatchq/dispatchq/internal/core WorkerRepository
