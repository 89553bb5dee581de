package item

// unmappedItemsQuery はProjects v2ボードのアイテムを1ページ分取得するクエリ。
// taskTypeは分類用の単一選択フィールドの値で、未設定の場合はnullになる。
const unmappedItemsQuery = `query UnmappedProjectItems($org: String!, $number: Int!, $first: Int!, $after: String, $taskTypeField: String!) {
  organization(login: $org) {
    projectV2(number: $number) {
      items(first: $first, after: $after) {
        pageInfo {
          hasNextPage
          endCursor
        }
        nodes {
          taskType: fieldValueByName(name: $taskTypeField) {
            __typename
          }
          content {
            __typename
            ... on Issue {
              title
              url
              author {
                login
              }
            }
          }
        }
      }
    }
  }
}`

// graphqlRequest はGraphQL APIへ送るリクエストボディ。
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables queryVariables `json:"variables"`
}

type queryVariables struct {
	Org           string  `json:"org"`
	Number        int     `json:"number"`
	First         int     `json:"first"`
	After         *string `json:"after"`
	TaskTypeField string  `json:"taskTypeField"`
}

// graphqlResponse はレスポンスのうち利用する部分。
// 各階層はnullまたは欠落し得るためポインタで受ける。
type graphqlResponse struct {
	Data   *queryData     `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type queryData struct {
	Organization *organization `json:"organization"`
}

type organization struct {
	ProjectV2 *projectV2 `json:"projectV2"`
}

type projectV2 struct {
	Items *itemConnection `json:"items"`
}

type itemConnection struct {
	PageInfo pageInfo    `json:"pageInfo"`
	Nodes    []*itemNode `json:"nodes"`
}

type pageInfo struct {
	HasNextPage bool    `json:"hasNextPage"`
	EndCursor   *string `json:"endCursor"`
}

type itemNode struct {
	TaskType *fieldValue  `json:"taskType"`
	Content  *itemContent `json:"content"`
}

type fieldValue struct {
	Typename string `json:"__typename"`
}

type itemContent struct {
	Typename string `json:"__typename"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Author   *actor `json:"author"`
}

type actor struct {
	Login string `json:"login"`
}

// items はitemsコネクションまでの経路をたどる。
// 途中の階層が欠けている場合はnilを返す。
func (r *graphqlResponse) items() *itemConnection {
	if r.Data == nil || r.Data.Organization == nil || r.Data.Organization.ProjectV2 == nil {
		return nil
	}
	return r.Data.Organization.ProjectV2.Items
}

func (r *graphqlResponse) errorMessages() []string {
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Message)
	}
	return msgs
}
