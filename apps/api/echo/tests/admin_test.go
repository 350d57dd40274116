package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core/user"
)

func Test_adminApi(t *testing.T) {
	f := setup(t)
	admin := f.createUser(t, "Admin", user.RoleAdministrator)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	adminToken := f.getToken(t, admin)

	t.Run("admins only", func(t *testing.T) {
		tests := []httpTest{
			{name: "anonymous", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{
				name: "teacher", token: f.getToken(t, teacher), wantCode: http.StatusForbidden,
				wantData: marchallObj(t, httpErr{Error: "permission denied"}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.path = "/api/admin/users"
				checkCodeAndData(t, tt, f.serve(tt))
			})
		}
	})

	t.Run("query users", func(t *testing.T) {
		rec := f.serve(httpTest{path: "/api/admin/users?ordering=-full_name", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var users []user.User
		decode(t, rec, &users)
		require.Len(t, users, 3)
		assert.Equal(t, []string{teacher.ID, student.ID, admin.ID}, []string{users[0].ID, users[1].ID, users[2].ID})

		rec = f.serve(httpTest{path: "/api/admin/users?role=Teacher", token: adminToken})
		require.Equal(t, http.StatusOK, rec.Code)
		users = nil
		decode(t, rec, &users)
		require.Len(t, users, 1)
		assert.Equal(t, teacher.ID, users[0].ID)

		rec = f.serve(httpTest{path: "/api/admin/users?search=nobody", token: adminToken})
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
	})

	t.Run("roles", func(t *testing.T) {
		rec := f.serve(httpTest{path: "/api/admin/roles", token: adminToken})
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.AllRoles)}, rec)
	})

	t.Run("assign and revoke", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "unknown role", path: "/api/admin/roles/assign",
				body:     marchallObj(t, user.RoleAssignment{Email: student.Email, Role: "Janitor"}),
				wantCode: http.StatusBadRequest,
			},
			{
				name: "unknown user", path: "/api/admin/roles/assign",
				body:     marchallObj(t, user.RoleAssignment{Email: "nobody@mycourse.test", Role: user.RoleTeacher}),
				wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "unknown user"}),
			},
			{
				name: "assigned", path: "/api/admin/roles/assign",
				body:     marchallObj(t, user.RoleAssignment{Email: " STUDENT@mycourse.test", Role: user.RoleTeacher}),
				wantCode: http.StatusOK,
			},
			{
				name: "revoked", path: "/api/admin/roles/revoke",
				body:     marchallObj(t, user.RoleAssignment{Email: teacher.Email, Role: user.RoleTeacher}),
				wantCode: http.StatusOK,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method = http.MethodPost
				tt.token = adminToken
				checkCodeAndData(t, tt, f.serve(tt))
			})
		}

		got, err := f.usrRepo.GetUser(ctxBg, user.GetFilter{ID: student.ID})
		require.NoError(t, err)
		assert.Equal(t, []string{user.RoleTeacher}, got.Roles)
		got, err = f.usrRepo.GetUser(ctxBg, user.GetFilter{ID: teacher.ID})
		require.NoError(t, err)
		assert.Empty(t, got.Roles)
	})
}
