package loadtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/propensity/internal/adapters/http/api"
	service "github.com/okian/propensity/internal/app"
	"github.com/okian/propensity/internal/domain/features"
	"github.com/okian/propensity/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
	_ = logger.SetLevelString("error")
}

const baseFeatures = `"Age","AnnualIncome","NumberOfPurchases","TimeSpentOnWebsite","CustomerTenureYears",` +
	`"LastPurchaseDaysAgo","DiscountsAvailed","SessionCount","CustomerSatisfaction","LoyaltyProgram"`

func newService(t *testing.T, files map[string]string) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	svc := service.New(service.WithModelsDir(dir))
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Stop)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a service with both curated models", t, func() {
		srv := newService(t, map[string]string{
			"logistic_no_cluster.json": `{"kind":"logistic_pipeline","feature_names":[` + baseFeatures + `],` +
				`"coef":[0,0.00001,0,0,0,0,0,0,0,0],"intercept":-1}`,
			"logistic_with_cluster.json": `{"kind":"label_only","feature_names":[` + baseFeatures + `,"Cluster"],` +
				`"coef":[0,0,0,0,0,0,0,0,0,0,1],"intercept":-1.5}`,
		})
		out := filepath.Join(t.TempDir(), "runs", "customers.json")

		stats, err := Run(context.Background(), &Config{
			BaseURL:      srv.URL,
			NumCustomers: 40,
			Workers:      4,
			Timeout:      5 * time.Second,
			Seed:         7,
			OutputFile:   out,
		})

		Convey("Every customer is scored consistently", func() {
			So(err, ShouldBeNil)
			So(stats.Models, ShouldEqual, 2)
			So(stats.Generated, ShouldEqual, 40)
			So(stats.Submitted, ShouldEqual, 40)
			So(stats.Successful, ShouldEqual, 40)
			So(stats.Failed, ShouldEqual, 0)
			So(stats.Issues, ShouldEqual, 0)
		})

		Convey("The scored customers are saved", func() {
			data, err := os.ReadFile(out)
			So(err, ShouldBeNil)

			var saved []Customer
			So(json.Unmarshal(data, &saved), ShouldBeNil)
			So(saved, ShouldHaveLength, 40)
			So(saved[0].Prediction, ShouldNotBeNil)
			So(saved[0].Prediction.Probability, ShouldNotBeNil)
			So(saved[1].Prediction.Probability, ShouldBeNil)
		})
	})

	Convey("Given a service without models", t, func() {
		srv := newService(t, nil)

		_, err := Run(context.Background(), &Config{BaseURL: srv.URL, NumCustomers: 5, Workers: 2, Timeout: time.Second})

		Convey("The run stops before generating customers", func() {
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "503")
		})
	})

	Convey("Given a cluster model published under a no-cluster name", t, func() {
		srv := newService(t, map[string]string{
			"logistic_no_cluster.json": `{"kind":"logistic_pipeline","feature_names":[` + baseFeatures + `,"Cluster"],` +
				`"coef":[0,0,0,0,0,0,0,0,0,0,0],"intercept":0}`,
		})

		stats, err := Run(context.Background(), &Config{BaseURL: srv.URL, NumCustomers: 6, Workers: 2, Timeout: time.Second, Seed: 1})

		Convey("Every request is rejected by the model", func() {
			So(err, ShouldBeNil)
			So(stats.Submitted, ShouldEqual, 6)
			So(stats.Rejected, ShouldEqual, 6)
			So(stats.Successful, ShouldEqual, 0)
		})
	})
}

func TestGenerateCustomers(t *testing.T) {
	Convey("Given two models", t, func() {
		models := []service.ModelOption{{Label: "A"}, {Label: "B", UsesCluster: true}}
		customers := generateCustomers(200, models, 42)

		Convey("Customers alternate between models", func() {
			So(customers[0].Model, ShouldEqual, "A")
			So(customers[1].Model, ShouldEqual, "B")
			So(customers[199].Model, ShouldEqual, "B")
		})

		Convey("Inputs stay inside the form bounds", func() {
			for _, c := range customers {
				in := c.Inputs
				So(in.Age, ShouldBeBetweenOrEqual, 18, 100)
				So(in.AnnualIncome, ShouldBeGreaterThanOrEqualTo, 0)
				So(in.NumberOfPurchases, ShouldBeBetweenOrEqual, 0, 100)
				So(in.TimeSpentOnWebsite, ShouldBeBetweenOrEqual, 0, 300)
				So(in.CustomerTenureYears, ShouldBeBetweenOrEqual, 0, 20)
				So(in.LastPurchaseDaysAgo, ShouldBeBetweenOrEqual, 0, 365)
				So(in.DiscountsAvailed, ShouldBeBetweenOrEqual, 0, 50)
				So(in.SessionCount, ShouldBeBetweenOrEqual, 1, 50)
				So(in.CustomerSatisfaction, ShouldBeBetweenOrEqual, 1, 5)
				So(in.LoyaltyProgram, ShouldBeBetweenOrEqual, 0, 1)
				So(in.Cluster, ShouldBeBetweenOrEqual, 0, 3)
			}
		})

		Convey("The same seed gives the same customers", func() {
			So(generateCustomers(200, models, 42), ShouldResemble, customers)
		})
	})
}

func TestVerifyResults(t *testing.T) {
	Convey("Given predictions that contradict their models", t, func() {
		models := []service.ModelOption{
			{Label: "A", Identifier: "a_no_cluster.json"},
			{Label: "B", Identifier: "b.json", UsesCluster: true},
		}
		bad := 1.5
		base := append([]string(nil), features.BaseKeys...)
		customers := []Customer{
			{Index: 0, Model: "A", Prediction: &service.Prediction{
				RequestID: "r1", Model: "A", Identifier: "a_no_cluster.json", Label: 1, Likely: true, Features: base,
			}},
			{Index: 1, Model: "A", Prediction: &service.Prediction{
				RequestID: "r1", Model: "A", Identifier: "a_no_cluster.json", Label: 1, Likely: false, Probability: &bad, Features: base,
			}},
			{Index: 2, Model: "B", Prediction: &service.Prediction{
				RequestID: "r3", Model: "B", Identifier: "b.json", Features: base,
			}},
			{Index: 3, Model: "B", Error: "invocation_failed: boom"},
		}

		issues, total := verifyResults(customers, models)

		Convey("Each contradiction is reported", func() {
			So(total, ShouldEqual, 4)
			So(issues, ShouldHaveLength, 4)
			So(issues[0], ShouldContainSubstring, "likely=false disagrees with label 1")
			So(issues[1], ShouldContainSubstring, "outside [0,1]")
			So(issues[2], ShouldContainSubstring, "reused from customer 0")
			So(issues[3], ShouldContainSubstring, "cluster sent=false")
		})
	})
}
