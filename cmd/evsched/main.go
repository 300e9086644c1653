/*
Copyright 2025 The Kubernetes Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/zetxqx/eventsched/cmd/evsched/runner"
	"github.com/zetxqx/eventsched/pkg/common/observability/logging"
)

func main() {
	// Delegate the controller-runtime logger before anything logs; flags adjust its level later.
	logging.InitSetupLogging()

	if err := runner.NewRunner().Run(ctrl.SetupSignalHandler()); err != nil {
		logging.Fatal(ctrl.Log.WithName("setup"), err, "Scheduler run failed")
	}
}
