// SPDX-License-Identifier: MIT

// Package kube runs pitwall's per-event workers as Kubernetes Jobs. The
// orchestrator drives it through the JobRunner interface; everything here is
// mechanics, no policy.
package kube

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/pitwall-live/pitwall/internal/log"
)

// LabelEventID marks every pitwall worker resource with its event.
const LabelEventID = "pitwall.live/event-id"

// LabelKind marks the worker kind (event-processor | logger | control-log).
const LabelKind = "pitwall.live/kind"

// Worker describes one per-event worker job. ServicePort > 0 additionally
// exposes the job's pods through a ClusterIP service of the same name.
type Worker struct {
	Name        string
	Kind        string
	EventID     string
	Image       string
	Command     []string
	Env         map[string]string
	ServicePort int32
}

// Job is one existing worker job as seen by a list.
type Job struct {
	Name    string
	EventID string
	Kind    string
}

// Runner manages worker Jobs and Services in one namespace.
type Runner struct {
	client    kubernetes.Interface
	namespace string
	logger    zerolog.Logger
}

// New builds a runner from the in-cluster config.
func New(namespace string) (*Runner, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build clientset: %w", err)
	}
	return NewWithClient(client, namespace), nil
}

// NewWithClient builds a runner on an existing clientset. Tests pass the
// fake clientset.
func NewWithClient(client kubernetes.Interface, namespace string) *Runner {
	return &Runner{
		client:    client,
		namespace: namespace,
		logger:    log.WithComponent("kube").With().Str(log.FieldNamespace, namespace).Logger(),
	}
}

// ListJobs returns every pitwall worker job in the namespace.
func (r *Runner) ListJobs(ctx context.Context) ([]Job, error) {
	list, err := r.client.BatchV1().Jobs(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: LabelEventID,
	})
	if err != nil {
		return nil, fmt.Errorf("list worker jobs: %w", err)
	}
	jobs := make([]Job, 0, len(list.Items))
	for _, item := range list.Items {
		jobs = append(jobs, Job{
			Name:    item.Name,
			EventID: item.Labels[LabelEventID],
			Kind:    item.Labels[LabelKind],
		})
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs, nil
}

// EnsureJob creates the worker job (and service) unless it already exists.
// Returns whether anything was created.
func (r *Runner) EnsureJob(ctx context.Context, w Worker) (bool, error) {
	_, err := r.client.BatchV1().Jobs(r.namespace).Get(ctx, w.Name, metav1.GetOptions{})
	if err == nil {
		return false, nil
	}
	if !apierrors.IsNotFound(err) {
		return false, fmt.Errorf("get job %s: %w", w.Name, err)
	}

	_, err = r.client.BatchV1().Jobs(r.namespace).Create(ctx, r.jobSpec(w), metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			// Another orchestrator pass won the race.
			return false, nil
		}
		return false, fmt.Errorf("create job %s: %w", w.Name, err)
	}
	r.logger.Info().Str(log.FieldJobName, w.Name).Str(log.FieldEventID, w.EventID).
		Str("event", "kube.job_created").Msg("worker job created")

	if w.ServicePort > 0 {
		if err := r.ensureService(ctx, w); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *Runner) ensureService(ctx context.Context, w Worker) error {
	_, err := r.client.CoreV1().Services(r.namespace).Create(ctx, r.serviceSpec(w), metav1.CreateOptions{})
	if err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("create service %s: %w", w.Name, err)
	}
	return nil
}

// DeleteEventWorkers removes every job and service of one event.
func (r *Runner) DeleteEventWorkers(ctx context.Context, eventID string) error {
	selector := fmt.Sprintf("%s=%s", LabelEventID, eventID)
	propagation := metav1.DeletePropagationBackground

	err := r.client.BatchV1().Jobs(r.namespace).DeleteCollection(ctx,
		metav1.DeleteOptions{PropagationPolicy: &propagation},
		metav1.ListOptions{LabelSelector: selector},
	)
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete jobs of event %s: %w", eventID, err)
	}

	services, err := r.client.CoreV1().Services(r.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: selector,
	})
	if err != nil {
		return fmt.Errorf("list services of event %s: %w", eventID, err)
	}
	for _, svc := range services.Items {
		err := r.client.CoreV1().Services(r.namespace).Delete(ctx, svc.Name, metav1.DeleteOptions{})
		if err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("delete service %s: %w", svc.Name, err)
		}
	}
	return nil
}

// DeleteJob removes one job by name. Used by the orchestrator's GC for jobs
// whose event it no longer knows.
func (r *Runner) DeleteJob(ctx context.Context, name string) error {
	propagation := metav1.DeletePropagationBackground
	err := r.client.BatchV1().Jobs(r.namespace).Delete(ctx, name, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("delete job %s: %w", name, err)
	}
	return nil
}

func (r *Runner) jobSpec(w Worker) *batchv1.Job {
	env := make([]corev1.EnvVar, 0, len(w.Env))
	for name, value := range w.Env {
		env = append(env, corev1.EnvVar{Name: name, Value: value})
	}
	sort.Slice(env, func(i, j int) bool { return env[i].Name < env[j].Name })

	labels := map[string]string{
		LabelEventID: w.EventID,
		LabelKind:    w.Kind,
	}
	backoffLimit := int32(4)

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name,
			Namespace: r.namespace,
			Labels:    labels,
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoffLimit,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyOnFailure,
					Containers: []corev1.Container{{
						Name:    w.Kind,
						Image:   w.Image,
						Command: w.Command,
						Env:     env,
					}},
				},
			},
		},
	}
}

func (r *Runner) serviceSpec(w Worker) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name,
			Namespace: r.namespace,
			Labels: map[string]string{
				LabelEventID: w.EventID,
				LabelKind:    w.Kind,
			},
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: map[string]string{"job-name": w.Name},
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       w.ServicePort,
				TargetPort: intstr.FromInt32(w.ServicePort),
			}},
		},
	}
}
