/*
 * Copyright 2026 HomeGrid Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package lifecycle runs a set of long-lived services until a shutdown
// signal arrives, then stops them in reverse start order.
package lifecycle

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/homegridlabs/marstekmon/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Service is a long-lived component. Start blocks until the context is
// canceled or Stop is called; Stop must be safe to call more than once.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Run starts every service and blocks until SIGINT/SIGTERM or until any
// service's Start returns an error. Services are stopped in reverse order,
// each with its own shutdown deadline.
func Run(ctx context.Context, log logger.Logger, services ...Service) error {
	if log == nil {
		log = logger.NewTestLogger()
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	startErrs := make(chan error, len(services))

	for _, svc := range services {
		go func(svc Service) {
			if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				startErrs <- err
			}
		}(svc)
	}

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case runErr = <-startErrs:
		log.Error().Err(runErr).Msg("Service failed, shutting down")
	}

	stopErrs := make([]error, 0, len(services))

	for i := len(services) - 1; i >= 0; i-- {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)

		if err := services[i].Stop(stopCtx); err != nil {
			stopErrs = append(stopErrs, err)
		}

		stopCancel()
	}

	log.Info().Msg("Shutdown complete")

	return errors.Join(append([]error{runErr}, stopErrs...)...)
}
